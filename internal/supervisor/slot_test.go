package supervisor

import (
	"reflect"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBuildArgvStart(t *testing.T) {
	sv := newTestSupervisor(t)
	slot := sv.slots[SlotMain]

	argv := sv.buildArgv(slot, RunStart)
	want := []string{"./rc.main", "start", sv.svdir}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("buildArgv(start) = %v, want %v", argv, want)
	}
}

func TestBuildArgvResetFromExit(t *testing.T) {
	sv := newTestSupervisor(t)
	slot := sv.slots[SlotMain]
	slot.wstat = unix.WaitStatus(17 << 8) // exit code 17

	argv := sv.buildArgv(slot, RunReset)
	want := []string{"./rc.main", "reset", sv.svdir, "exit", "17"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("buildArgv(reset) = %v, want %v", argv, want)
	}
}

func TestBuildArgvResetFromSignal(t *testing.T) {
	sv := newTestSupervisor(t)
	slot := sv.slots[SlotLog]
	slot.wstat = unix.WaitStatus(unix.SIGSEGV) // low 7 bits = termsig

	argv := sv.buildArgv(slot, RunReset)
	want := []string{"./rc.log", "reset", sv.svdir, "signal", "11", "SIGSEGV"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("buildArgv(reset) = %v, want %v", argv, want)
	}
}

func TestSlotIDString(t *testing.T) {
	if SlotMain.String() != "main" {
		t.Errorf("SlotMain.String() = %q, want main", SlotMain.String())
	}
	if SlotLog.String() != "log" {
		t.Errorf("SlotLog.String() = %q, want log", SlotLog.String())
	}
}
