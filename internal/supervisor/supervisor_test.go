package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cfoster/svsuper/internal/status"
)

func TestShutDownNoLogCompletesOnceMainIsDown(t *testing.T) {
	sv := newTestSupervisor(t)
	main := sv.slots[SlotMain]
	main.pid = 0
	main.wantDown = false

	done := sv.shutDown()
	if !done {
		t.Fatalf("expected shutDown to complete with no log service and main already down")
	}
	if !main.wantDown {
		t.Errorf("expected wantDown fixed up to true")
	}
}

func TestShutDownMainRunningIsNotDoneYet(t *testing.T) {
	sv := newTestSupervisor(t)
	main := sv.slots[SlotMain]
	main.pid = 999999997
	main.isReset = false

	if sv.shutDown() {
		t.Errorf("shutDown must not report done while main is still running")
	}
	if !main.wantDown {
		t.Errorf("expected 'd' (via doControl) to have set wantDown")
	}
}

func TestShutDownWaitsForLogAfterMainDown(t *testing.T) {
	sv := newTestSupervisor(t)
	sv.hasLog = true
	sv.slots[SlotMain].pid = 0
	sv.slots[SlotMain].wantDown = true
	sv.slots[SlotLog].pid = 999999997
	sv.slots[SlotLog].isReset = false
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error: %v", err)
	}
	defer r.Close()
	sv.logPipeR, sv.logPipeW = r, w

	if sv.shutDown() {
		t.Errorf("shutDown must not report done while log is still running")
	}
	if sv.logPipeW != nil {
		t.Errorf("expected closeLogPipeWrite to have cleared logPipeW")
	}
}

func TestShutDownCompletesWithBothSlotsDown(t *testing.T) {
	sv := newTestSupervisor(t)
	sv.hasLog = true
	sv.slots[SlotMain].pid = 0
	sv.slots[SlotMain].wantDown = true
	sv.slots[SlotLog].pid = 0
	sv.slots[SlotLog].wantDown = true

	if !sv.shutDown() {
		t.Errorf("expected shutDown to complete with both slots quiescently down")
	}
}

func TestPublishStatusWritesRecordAndClearsStatChange(t *testing.T) {
	sv := newTestSupervisor(t)
	sv.ctlDir = t.TempDir()
	sv.slots[SlotMain].pid = 555
	sv.pidChange(SlotMain)
	sv.statChange = 1

	sv.publishStatus()

	if sv.statChange != 0 {
		t.Errorf("expected statChange reset to 0 after publish")
	}

	b, err := os.ReadFile(filepath.Join(sv.ctlDir, "status"))
	if err != nil {
		t.Fatalf("read published status: %v", err)
	}
	_, mainPID, _, _, err := status.Parse(b)
	if err != nil {
		t.Fatalf("status.Parse() error: %v", err)
	}
	if mainPID != 555 {
		t.Errorf("mainPID = %d, want 555", mainPID)
	}
}

func TestMarkDirtyIncrements(t *testing.T) {
	sv := newTestSupervisor(t)
	sv.markDirty()
	sv.markDirty()
	if sv.statChange != 2 {
		t.Errorf("statChange = %d, want 2", sv.statChange)
	}
}
