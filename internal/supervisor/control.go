package supervisor

import (
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/cfoster/svsuper/internal/protocol"
	"github.com/cfoster/svsuper/internal/signame"
)

// Command bytes accepted on the control protocol, matching do_control()'s
// dispatch table: meta-commands (X/D/U), faux signals (d/u/o), and true
// signals (a/c/h/i/k/p/q/t/w/1/2).
const (
	cmdExit      = 'X'
	cmdDownBoth  = 'D'
	cmdUpBoth    = 'U'
	cmdDown      = 'd'
	cmdUp        = 'u'
	cmdOnce      = 'o'
	cmdAlarm     = 'a'
	cmdContinue  = 'c'
	cmdHangup    = 'h'
	cmdInterrupt = 'i'
	cmdKill      = 'k'
	cmdPause     = 'p'
	cmdQuit      = 'q'
	cmdTerminate = 't'
	cmdWinch     = 'w'
	cmdUsr1      = '1'
	cmdUsr2      = '2'
)

// doControl applies cmd to the slot selected by which. It returns
// false for a command byte it does not recognize, which the caller
// turns into an EPROTO reply.
func (s *Supervisor) doControl(which SlotID, cmd byte) bool {
	slot := s.slots[which]
	pid := slot.pid

	switch cmd {
	case cmdExit:
		if which == SlotLog {
			break
		}
		s.flagExit.Store(true)

	case cmdDownBoth:
		if which == SlotLog {
			break
		}
		s.doControl(SlotMain, cmdDown)
		s.doControl(SlotLog, cmdDown)

	case cmdUpBoth:
		if which == SlotLog {
			break
		}
		s.doControl(SlotLog, cmdUp)
		s.doControl(SlotMain, cmdUp)

	case cmdDown:
		slot.wantDown = true
		if pid > 0 {
			s.doControl(which, cmdTerminate)
			s.doControl(which, cmdContinue)
		}
		s.markDirty()

	case cmdUp:
		slot.isOnce = false
		slot.wantDown = false
		if pid == 0 {
			s.subsvExec(which, RunStart)
		} else {
			s.markDirty()
		}

	case cmdOnce:
		slot.isOnce = true
		slot.wantDown = false
		if pid == 0 {
			s.subsvExec(which, RunStart)
		} else {
			s.markDirty()
		}

	case cmdAlarm:
		if pid > 0 {
			s.doKill(which, unix.SIGALRM)
		}

	case cmdContinue:
		slot.isPaused = false
		if pid > 0 {
			s.doKill(which, unix.SIGCONT)
		}
		s.markDirty()

	case cmdHangup:
		if pid > 0 {
			s.doKill(which, unix.SIGHUP)
		}

	case cmdInterrupt:
		if pid > 0 {
			s.doKill(which, unix.SIGINT)
		}

	case cmdKill:
		if pid > 0 {
			s.doKill(which, unix.SIGKILL)
		}

	case cmdPause:
		if pid > 0 && !slot.isReset {
			s.doKill(which, unix.SIGSTOP)
			slot.isPaused = true
			s.markDirty()
		}

	case cmdQuit:
		if pid > 0 {
			s.doKill(which, unix.SIGQUIT)
		}

	case cmdTerminate:
		if pid > 0 {
			s.doKill(which, unix.SIGTERM)
		}

	case cmdWinch:
		if pid > 0 {
			s.doKill(which, unix.SIGWINCH)
		}

	case cmdUsr1:
		if pid > 0 {
			s.doKill(which, unix.SIGUSR1)
		}

	case cmdUsr2:
		if pid > 0 {
			s.doKill(which, unix.SIGUSR2)
		}

	default:
		return false
	}
	return true
}

// doKill delivers sig to a slot's child, filtering signals to CONT and
// KILL while the slot is running its reset script — every other
// signal is dropped with a warning, matching do_kill()'s reset-time
// filtering rule.
func (s *Supervisor) doKill(which SlotID, sig syscall.Signal) {
	slot := s.slots[which]

	if !slot.isReset {
		if err := unix.Kill(slot.pid, sig); err != nil {
			logWarning("kill(%d, %s): %v", slot.pid, signame.Name(sig), err)
		}
		return
	}

	switch sig {
	case unix.SIGCONT, unix.SIGKILL:
		if err := unix.Kill(slot.pid, sig); err != nil {
			logWarning("kill(%d, %s): %v", slot.pid, signame.Name(sig), err)
		}
	default:
		logWarning("dropping %s to %s service while it runs reset", signame.Name(sig), slot.name())
	}
}

// handleControlPacket decodes one request read off ctl.in and writes
// its reply to ctl.out, matching check_control()'s dispatch.
func (s *Supervisor) handleControlPacket(pkt protocol.Packet) {
	id := uuid.NewString()

	if pkt.Version != protocol.Version {
		logWarning("request %s: unsupported protocol version %d", id, pkt.Version)
		s.reply(protocol.ErrorPacket(protocol.EPROTO))
		return
	}

	switch pkt.Type {
	case protocol.TypeCommand:
		cmd, toLog, err := protocol.DecodeCommand(pkt.Payload)
		if err != nil {
			logWarning("request %s: %v", id, err)
			s.reply(protocol.ErrorPacket(protocol.EPROTO))
			return
		}
		which := SlotMain
		if toLog {
			which = SlotLog
		}
		logDebug("request %s: command %q -> %s", id, cmd, which)
		if !s.doControl(which, cmd) {
			logWarning("request %s: unknown command %q", id, cmd)
			s.reply(protocol.ErrorPacket(protocol.EPROTO))
			return
		}
		s.reply(protocol.ErrorPacket(0))

	case protocol.TypeQuery:
		logTrace("request %s: status query", id)
		s.reply(protocol.StatusPacket(s.rec.Bytes()))

	default:
		logWarning("request %s: unknown packet type %q", id, pkt.Type)
		s.reply(protocol.ErrorPacket(protocol.EPROTO))
	}
}

func (s *Supervisor) reply(p protocol.Packet) {
	if err := protocol.WriteTo(s.fifoOut, p); err != nil {
		logWarning("write control reply: %v", err)
	}
}
