package supervisor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cfoster/svsuper/internal/signame"
)

// checkChildren reaps every exited child in one non-blocking pass and
// advances the START/RESET/DOWN state machine for any slot that
// exited this pass, mirroring check_children(): reap everything first,
// decide transitions after, so a slot's own isReset/wantDown reflect
// the run that just ended.
func (s *Supervisor) checkChildren() {
	var exited [2]bool

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			break
		}

		which, ok := s.slotForPID(pid)
		if !ok {
			logTrace("reaped pid %d: not a tracked child", pid)
			continue
		}

		slot := s.slots[which]
		if slot.isReset {
			logDebug("%s exited from reset (%s)", slot.name(), describeWait(ws))
		} else {
			logDebug("%s exited from start (%s)", slot.name(), describeWait(ws))
		}

		s.recordExit(which, ws)
		exited[which] = true
	}

	for which := SlotMain; which <= SlotLog; which++ {
		if exited[which] {
			s.afterExit(which)
		}
	}
}

// recordExit clears a slot's pid after it has been reaped and updates
// the published status.
func (s *Supervisor) recordExit(which SlotID, ws unix.WaitStatus) {
	slot := s.slots[which]
	slot.pid = 0
	slot.wstat = ws
	if slot.isOnce {
		slot.wantDown = true
	}
	s.pidChange(which)
}

// afterExit decides whether a just-exited slot needs its reset script
// run, or is ready to start again.
func (s *Supervisor) afterExit(which SlotID) {
	slot := s.slots[which]
	if which == SlotLog && !s.hasLog {
		return
	}
	if slot.pid != 0 {
		return
	}

	if !slot.isReset {
		s.subsvExec(which, RunReset)
		return
	}
	if !slot.wantDown {
		s.subsvExec(which, RunStart)
	}
}

func (s *Supervisor) slotForPID(pid int) (SlotID, bool) {
	for i, slot := range s.slots {
		if slot.pid == pid {
			return SlotID(i), true
		}
	}
	return 0, false
}

func describeWait(ws unix.WaitStatus) string {
	switch {
	case ws.Exited():
		return fmt.Sprintf("exit %d", ws.ExitStatus())
	case ws.Signaled():
		return fmt.Sprintf("signal %d (%s)", int(ws.Signal()), signame.Name(ws.Signal()))
	case ws.Stopped():
		return fmt.Sprintf("stopped %d (%s)", int(ws.StopSignal()), signame.Name(ws.StopSignal()))
	default:
		return "unknown wait status"
	}
}
