// Package supervisor implements the per-service process supervisor:
// two subservice slots (MAIN, LOG) carried through a start/reset
// lifecycle, a binary control protocol over a pair of FIFOs, and an
// atomically-published status record.
package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cfoster/svsuper/internal/config"
	"github.com/cfoster/svsuper/internal/protocol"
	"github.com/cfoster/svsuper/internal/status"
)

// Supervisor owns the full state machine for one service directory.
type Supervisor struct {
	svdir string // absolute path to the supervised service directory
	pid   int
	boot  time.Time
	cfg   *config.Config

	hasLog   bool
	flagDown bool
	flagOnce bool
	flagExit atomic.Bool

	svdirFile *os.File
	pidlock   *os.File
	ctlLock   *os.File
	ctlDir    string
	fifoIn    *os.File
	fifoOut   *os.File

	logPipeR *os.File
	logPipeW *os.File

	slots [2]*Slot

	rec        *status.Record
	statChange int

	sigCh chan os.Signal
	reqCh chan inboundRequest

	watcher *dirWatcher
}

type inboundRequest struct {
	pkt protocol.Packet
}

// New constructs a Supervisor for the service directory at svdir. It
// does not touch the filesystem beyond resolving svdir to an absolute
// path — call Setup to do that.
func New(svdir string, cfg *config.Config) (*Supervisor, error) {
	abs, err := filepath.Abs(svdir)
	if err != nil {
		return nil, fmt.Errorf("resolve service directory: %w", err)
	}

	pid := os.Getpid()
	boot := time.Now()

	s := &Supervisor{
		svdir: abs,
		pid:   pid,
		boot:  boot,
		cfg:   cfg,
		slots: [2]*Slot{
			{id: SlotMain},
			{id: SlotLog, isLog: true},
		},
		rec: status.New(pid, boot),
	}
	setVerbose(cfg.Verbose)
	return s, nil
}

// ForceOnce makes the boot-time MAIN start behave as though flag.once
// were present, regardless of what's on disk — the -o command line
// flag's effect. Call before Setup.
func (s *Supervisor) ForceOnce() {
	s.flagOnce = true
}

// Setup performs every filesystem action needed before Run can begin:
// reading boot flags, building the control directory and FIFOs, and
// starting the boot-time children. Errors returned here may be
// *ExitCodeError to signal a specific process exit status.
func (s *Supervisor) Setup() error {
	if err := s.setupService(); err != nil {
		return err
	}
	if err := s.setupControl(); err != nil {
		return err
	}
	s.watcher = newDirWatcher(s)
	s.serviceBoot()
	return nil
}

// Run executes the main event loop until a full shutdown sequence
// completes (triggered by the 'X' control command or SIGTERM),
// mirroring main_loop(): check for an in-progress shut_down(), publish
// any pending status change, then block for the next signal or
// control request. There is no periodic tick — every step that can
// advance the state machine (a child exit, a control command, the
// respawn governor's delay) arrives as a signal or FIFO read; the
// governor's delay itself is slept inside the forked child, not here,
// so the parent never needs a timer to make progress.
func (s *Supervisor) Run() error {
	defer s.cleanup()

	s.sigCh = make(chan os.Signal, 8)
	signal.Notify(s.sigCh, syscall.SIGCHLD, syscall.SIGTERM)
	defer signal.Stop(s.sigCh)

	s.reqCh = make(chan inboundRequest)
	go s.fifoReader()

	if s.watcher != nil {
		go s.watcher.run()
	}

	// check_children() can race a SIGCHLD delivered before Notify
	// registered; reap once up front so a child that exited during
	// Setup isn't missed until the next signal.
	s.checkChildren()

	for {
		if s.flagExit.Load() {
			if s.shutDown() {
				logInfo("shut_down complete, exiting")
				return nil
			}
		}

		if s.statChange > 0 {
			s.publishStatus()
		}

		select {
		case sig := <-s.sigCh:
			switch sig {
			case syscall.SIGCHLD:
				s.checkChildren()
			case syscall.SIGTERM:
				logInfo("received SIGTERM, beginning shut_down")
				s.flagExit.Store(true)
			}
		case req := <-s.reqCh:
			s.handleControlPacket(req.pkt)
		}
	}
}

// fifoReader blocks reading one framed packet at a time off ctl.in and
// hands each to Run over reqCh, serializing requests one at a time
// since reqCh is unbuffered.
func (s *Supervisor) fifoReader() {
	for {
		pkt, err := protocol.ReadFrom(s.fifoIn)
		if err != nil {
			if s.flagExit.Load() {
				return
			}
			logWarning("read control request: %v", err)
			continue
		}
		s.reqCh <- inboundRequest{pkt: pkt}
	}
}

// shutDown advances the shutdown sequencer one step: MAIN must reach
// a quiescent down state before LOG is brought down, matching
// shut_down(). It returns true once both slots (or just MAIN, if
// there is no log service) are quiescently down.
func (s *Supervisor) shutDown() bool {
	main := s.slots[SlotMain]
	if main.pid != 0 {
		if main.isReset {
			main.wantDown = true
			s.doControl(SlotMain, cmdContinue)
		} else {
			s.doControl(SlotMain, cmdDown)
		}
		return false
	}

	// main.pid == 0 here: by the state machine in checkChildren, the
	// only way to observe this inside shutDown is already-down, since
	// an exited "start" run is immediately re-executed as "reset" in
	// the same pass. Fix the flag defensively and make sure the
	// resulting quiescent-down shows up in the published record.
	if !main.wantDown {
		main.wantDown = true
		s.markDirty()
	}

	if !s.hasLog {
		return true
	}

	logSlot := s.slots[SlotLog]
	if logSlot.pid != 0 {
		if logSlot.isReset {
			logSlot.wantDown = true
			s.doControl(SlotLog, cmdContinue)
		} else {
			logDebug("closing log pipe write end before bringing down log service")
			s.closeLogPipeWrite()
			s.doControl(SlotLog, cmdDown)
		}
		return false
	}

	if !logSlot.wantDown {
		logSlot.wantDown = true
		s.markDirty()
	}

	return true
}

func (s *Supervisor) closeLogPipeWrite() {
	if s.logPipeW != nil {
		s.logPipeW.Close()
		s.logPipeW = nil
	}
}

func (s *Supervisor) markDirty() { s.statChange++ }

// pidChange records a slot's new pid and timestamp in the status
// record and marks it dirty, matching binstat_pidchange().
func (s *Supervisor) pidChange(which SlotID) {
	s.rec.SetSlotPID(which == SlotLog, s.slots[which].pid, time.Now())
	s.markDirty()
}

// publishStatus recomputes every slot's flag byte and atomically
// republishes the status file, matching binstat_post().
func (s *Supervisor) publishStatus() {
	s.rec.SetSuperFlags(s.flagExit.Load(), s.hasLog)
	for i := range s.slots {
		which := SlotID(i)
		if which == SlotLog && !s.hasLog {
			continue
		}
		slot := s.slots[which]
		s.rec.SetSlotFlags(which == SlotLog, status.SlotFlags{
			PID:      slot.pid,
			IsReset:  slot.isReset,
			IsPaused: slot.isPaused,
			WantDown: slot.wantDown,
			IsOnce:   slot.isOnce,
		})
	}

	tmp := filepath.Join(s.ctlDir, "status.tmp")
	final := filepath.Join(s.ctlDir, "status")
	if err := s.rec.Publish(tmp, final); err != nil {
		logWarning("publish status: %v", err)
		return
	}
	s.statChange = 0
}

func (s *Supervisor) cleanup() {
	if s.pidlock != nil {
		unix.Flock(int(s.pidlock.Fd()), unix.LOCK_UN)
		s.pidlock.Close()
	}
	if s.ctlLock != nil {
		s.ctlLock.Close()
	}
	if s.fifoIn != nil {
		s.fifoIn.Close()
	}
	if s.fifoOut != nil {
		s.fifoOut.Close()
	}
	if s.logPipeW != nil {
		s.logPipeW.Close()
	}
	if s.logPipeR != nil {
		s.logPipeR.Close()
	}
	if s.svdirFile != nil {
		s.svdirFile.Close()
	}
}
