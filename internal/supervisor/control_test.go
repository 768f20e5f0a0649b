package supervisor

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/cfoster/svsuper/internal/config"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	sv, err := New(t.TempDir(), &config.Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return sv
}

func TestDoControlUnknownCommand(t *testing.T) {
	sv := newTestSupervisor(t)
	if sv.doControl(SlotMain, '?') {
		t.Errorf("expected doControl to reject an unrecognized command byte")
	}
}

func TestDoControlDownSetsWantDownWithoutRunningChild(t *testing.T) {
	sv := newTestSupervisor(t)
	sv.doControl(SlotMain, cmdDown)

	main := sv.slots[SlotMain]
	if !main.wantDown {
		t.Errorf("expected wantDown set after 'd' with no running child")
	}
}

func TestDoControlUpClearsOnceAndWantDown(t *testing.T) {
	sv := newTestSupervisor(t)
	main := sv.slots[SlotMain]
	main.isOnce = true
	main.wantDown = true
	main.pid = 1234 // pretend something is already running, skip the spawn path

	sv.doControl(SlotMain, cmdUp)

	if main.isOnce {
		t.Errorf("expected isOnce cleared by 'u'")
	}
	if main.wantDown {
		t.Errorf("expected wantDown cleared by 'u'")
	}
}

func TestDoControlExitOnlyAppliesToMain(t *testing.T) {
	sv := newTestSupervisor(t)
	sv.doControl(SlotLog, cmdExit)
	if sv.flagExit.Load() {
		t.Errorf("'X' sent to the log slot must not set flagExit")
	}

	sv.doControl(SlotMain, cmdExit)
	if !sv.flagExit.Load() {
		t.Errorf("'X' sent to main must set flagExit")
	}
}

func TestDoKillFiltersDuringReset(t *testing.T) {
	sv := newTestSupervisor(t)
	main := sv.slots[SlotMain]
	main.pid = 999999997 // unused pid, Kill() will fail harmlessly
	main.isReset = true

	// SIGTERM must be dropped while resetting — isReset stays true and
	// no attempt is made to signal the bogus pid in a way that would
	// be observable here; this test only exercises that doKill doesn't
	// panic and leaves state untouched.
	sv.doKill(SlotMain, unix.SIGTERM)
	if !main.isReset {
		t.Errorf("doKill must not mutate isReset")
	}
}

func TestDoControlPauseSkippedDuringReset(t *testing.T) {
	sv := newTestSupervisor(t)
	main := sv.slots[SlotMain]
	main.pid = 999999997
	main.isReset = true

	sv.doControl(SlotMain, cmdPause)
	if main.isPaused {
		t.Errorf("'p' must be a no-op while the slot is resetting")
	}
}
