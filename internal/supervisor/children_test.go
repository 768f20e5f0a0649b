package supervisor

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestAfterExitFromStartTriggersResetNotStart(t *testing.T) {
	sv := newTestSupervisor(t)
	main := sv.slots[SlotMain]
	main.pid = 0
	main.isReset = false // exited from "start"

	// rc.main doesn't exist in the temp dir, but the reset attempt
	// still spawns (via /bin/sh, which always exists) before failing
	// asynchronously later; this test only checks that afterExit
	// chose the reset path, by observing isReset flip to true.
	sv.afterExit(SlotMain)

	if !main.isReset {
		t.Errorf("expected isReset=true after an exit-from-start transition")
	}
}

func TestAfterExitFromResetWithWantDownStaysDown(t *testing.T) {
	sv := newTestSupervisor(t)
	main := sv.slots[SlotMain]
	main.pid = 0
	main.isReset = true
	main.wantDown = true

	sv.afterExit(SlotMain)

	if main.pid != 0 {
		t.Errorf("expected slot to remain down when wantDown is set")
	}
}

func TestAfterExitSkipsLogSlotWithoutLogService(t *testing.T) {
	sv := newTestSupervisor(t)
	sv.hasLog = false
	logSlot := sv.slots[SlotLog]
	logSlot.pid = 0

	sv.afterExit(SlotLog)

	if logSlot.isReset {
		t.Errorf("afterExit must no-op for the log slot when hasLog is false")
	}
}

func TestRecordExitClearsOnceIntoWantDown(t *testing.T) {
	sv := newTestSupervisor(t)
	main := sv.slots[SlotMain]
	main.pid = 4242
	main.isOnce = true

	sv.recordExit(SlotMain, unix.WaitStatus(0))

	if main.pid != 0 {
		t.Errorf("expected pid cleared after recordExit")
	}
	if !main.wantDown {
		t.Errorf("expected wantDown set for a once-slot after it exits")
	}
}

func TestSlotForPID(t *testing.T) {
	sv := newTestSupervisor(t)
	sv.slots[SlotMain].pid = 111
	sv.slots[SlotLog].pid = 222

	if which, ok := sv.slotForPID(222); !ok || which != SlotLog {
		t.Errorf("slotForPID(222) = (%v, %v), want (SlotLog, true)", which, ok)
	}
	if _, ok := sv.slotForPID(999); ok {
		t.Errorf("slotForPID(999) should not match any tracked slot")
	}
}

func TestDescribeWaitExited(t *testing.T) {
	got := describeWait(unix.WaitStatus(5 << 8))
	if got != "exit 5" {
		t.Errorf("describeWait() = %q, want %q", got, "exit 5")
	}
}
