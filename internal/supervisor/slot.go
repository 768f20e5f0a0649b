package supervisor

import (
	"errors"
	"log"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cfoster/svsuper/internal/signame"
)

// SlotID identifies one of the two subservice slots.
type SlotID int

const (
	SlotMain SlotID = iota
	SlotLog
)

func (id SlotID) String() string {
	if id == SlotLog {
		return "log"
	}
	return "main"
}

// run targets, passed as argv[1] to rc.main / rc.log.
const (
	RunStart = iota
	RunReset
)

// Slot tracks one subservice's run state between the two lifecycle
// scripts, rc.main/rc.log start and reset.
type Slot struct {
	id    SlotID
	isLog bool

	pid     int
	isReset bool // true while the currently-running child is "reset", not "start"
	wstat   unix.WaitStatus

	wantDown bool
	isOnce   bool
	isPaused bool

	whenOK time.Time // earliest time a new "start" may be executed (respawn governor)
}

func (s *Slot) name() string { return s.id.String() }

// buildArgv constructs the argv for the rc script invoked for target,
// mirroring subsv_exec()'s reset-argv construction: "exit <code>",
// "signal <n> <name>", or "stopped <n> <name>".
func (s *Supervisor) buildArgv(slot *Slot, target int) []string {
	script := "./rc.main"
	if slot.isLog {
		script = "./rc.log"
	}
	targetName := "start"
	if target == RunReset {
		targetName = "reset"
	}

	argv := []string{script, targetName, s.svdir}
	if target != RunReset {
		return argv
	}

	ws := slot.wstat
	switch {
	case ws.Exited():
		argv = append(argv, "exit", strconv.Itoa(ws.ExitStatus()))
	case ws.Signaled():
		sig := ws.Signal()
		argv = append(argv, "signal", strconv.Itoa(int(sig)), signame.Name(sig))
	case ws.Stopped():
		sig := ws.StopSignal()
		argv = append(argv, "stopped", strconv.Itoa(int(sig)), signame.Name(sig))
	default:
		argv = append(argv, "signal", "0", signame.Name(unix.Signal(0)))
	}
	return argv
}

// newCmd builds the exec.Cmd for argv, running in svdir. The run
// script is always reached through a shell "exec", not a direct
// os/exec.Cmd.Path: Go's Start() would otherwise detect a failed exec
// (a missing or non-executable rc.main/rc.log) synchronously and
// return it as an error from this process, never as a child exit our
// own checkChildren() reap loop observes — unlike real fork/exec,
// where that failure always happens inside the already-forked child.
// Routing through sh keeps that failure mode real and asynchronous,
// matching subsv_exec()'s execve()-inside-the-child behavior. When
// wait > 0 the respawn governor's delay is also slept inside the
// child, for the same reason: the event loop can't block to sleep
// between fork and exec itself.
func newCmd(svdir string, argv []string, wait string) *exec.Cmd {
	script := "exec \"$0\" \"$@\""
	if wait != "" {
		script = "sleep " + wait + "; " + script
	}
	// sh resolves "./rc.main" relative to its own cwd (svdir, set via
	// Dir below), so $0 both finds the binary and supplies argv[0].
	args := append([]string{"/bin/sh", "-c", script}, argv...)
	return &exec.Cmd{Path: "/bin/sh", Args: args, Dir: svdir}
}

// subsvExec starts the next run of a slot, applying the respawn
// governor when target is RunStart and the floor interval since the
// last start hasn't elapsed, matching subsv_exec().
func (s *Supervisor) subsvExec(which SlotID, target int) {
	slot := s.slots[which]
	if which == SlotLog && !s.hasLog {
		return
	}
	if slot.pid != 0 {
		return
	}

	argv := s.buildArgv(slot, target)

	now := time.Now()
	var wait time.Duration
	if target == RunStart && now.Before(slot.whenOK) {
		wait = slot.whenOK.Sub(now)
		logWarning("setting respawn governor on %s, delaying %s", slot.name(), wait)
	}

	waitArg := ""
	if wait > 0 {
		waitArg = strconv.FormatFloat(wait.Seconds(), 'f', -1, 64)
	}

	slot.isReset = target == RunReset

	pid, err := s.spawn(slot, argv, waitArg)
	for err != nil && isTransientSpawnErr(err) {
		logWarning("failure fork() for starting child process: %v", err)
		logWarning("wedging for retry in %s...", s.cfg.ForkBackoff())
		time.Sleep(s.cfg.ForkBackoff())
		pid, err = s.spawn(slot, argv, waitArg)
	}
	if err != nil {
		// Only a missing/broken /bin/sh reaches here — rc.main/rc.log
		// being absent or non-executable fails inside sh, later, as a
		// real child exit. That's unrecoverable for every slot alike.
		log.Fatalf("failure starting %s via /bin/sh: %v", slot.name(), err)
	}

	slot.pid = pid
	slot.wstat = 0
	slot.isPaused = false
	if target == RunStart {
		slot.whenOK = now.Add(s.cfg.RespawnFloor()).Add(wait)
	}
	s.pidChange(which)
}

func (s *Supervisor) spawn(slot *Slot, argv []string, waitArg string) (int, error) {
	cmd := newCmd(s.svdir, argv, waitArg)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout

	if s.hasLog {
		if slot.id == SlotMain {
			cmd.Stdout = s.logPipeW
		} else if s.logPipeR != nil && !slot.isReset {
			// LOG only reads from the pipe on a START run; a resetting
			// LOG inherits nothing from it.
			cmd.Stdin = s.logPipeR
		}
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	// Deliberately never call cmd.Wait(): reaping is done exclusively
	// by checkChildren()'s unix.Wait4(-1, ...) loop so every exit,
	// regardless of which slot it belongs to, is observed through one
	// ordering-preserving path.
	return cmd.Process.Pid, nil
}

func isTransientSpawnErr(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM)
}
