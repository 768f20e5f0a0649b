package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitCodeError carries a specific process exit status for a setup
// failure that warrants a distinct code — any failure of the initial
// status publication uses 111, whether a short write or a failure to
// open, write, close or rename the status file; every other fatal
// setup failure uses the generic 100-class.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string { return e.Err.Error() }
func (e *ExitCodeError) Unwrap() error { return e.Err }

func fatalExit(code int, context string, err error) error {
	return &ExitCodeError{Code: code, Err: fmt.Errorf("%s: %w", context, err)}
}

// deriveControlDir computes the control directory for a service
// directory, keyed on device+inode so two different paths resolving
// to the same directory never race for the same pidlock. The exact
// parent layout (sibling ".control" directory) is our own choice; the
// wider naming convention of a surrounding service registry is out of
// scope.
func deriveControlDir(svdirAbs string) (string, error) {
	fi, err := os.Stat(svdirAbs)
	if err != nil {
		return "", fmt.Errorf("stat service directory: %w", err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s is not a directory", svdirAbs)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return "", fmt.Errorf("cannot determine device/inode for %s", svdirAbs)
	}
	name := strconv.FormatUint(uint64(st.Dev), 10) + "." + strconv.FormatUint(st.Ino, 10)
	return filepath.Join(filepath.Dir(svdirAbs), ".control", name), nil
}

// acquirePidlock exclusively locks (and stamps with pid) the file that
// enforces "exactly one live supervisor per service directory".
func acquirePidlock(path string, pid int) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another supervisor instance already holds %s: %w", path, err)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(pid)), 0); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// setupService opens the service directory and reads its boot-time
// flags, matching setup_service(): flag.down, flag.once, and whether
// rc.log exists and is executable.
func (s *Supervisor) setupService() error {
	f, err := os.Open(s.svdir)
	if err != nil {
		return fatalExit(100, "open service directory", err)
	}
	s.svdirFile = f

	if _, err := os.Stat(filepath.Join(s.svdir, "flag.down")); err == nil {
		s.flagDown = true
	}
	if _, err := os.Stat(filepath.Join(s.svdir, "flag.once")); err == nil {
		s.flagOnce = true
	}

	if fi, err := os.Stat(filepath.Join(s.svdir, "rc.log")); err == nil {
		if fi.Mode()&0111 != 0 {
			s.hasLog = true
		} else {
			logWarning("rc.log exists but is not executable, ignoring")
		}
	}

	if s.hasLog {
		r, w, err := os.Pipe()
		if err != nil {
			return fatalExit(100, "create log pipe", err)
		}
		s.logPipeR, s.logPipeW = r, w
	}
	return nil
}

// setupControl builds the control directory, acquires the pidlock,
// publishes the initial status record, and creates/opens both control
// FIFOs read/write so they never see EOF for lack of a peer, matching
// setup_control().
func (s *Supervisor) setupControl() error {
	ctlDir, err := deriveControlDir(s.svdir)
	if err != nil {
		return fatalExit(100, "derive control directory", err)
	}
	s.ctlDir = ctlDir

	if err := os.MkdirAll(filepath.Dir(ctlDir), 0755); err != nil {
		return fatalExit(100, "mkdir control parent", err)
	}
	if err := os.Mkdir(ctlDir, 0700); err != nil && !os.IsExist(err) {
		return fatalExit(100, "mkdir control directory", err)
	}

	pidlock, err := acquirePidlock(filepath.Join(ctlDir, "lock.pid"), s.pid)
	if err != nil {
		return fatalExit(100, "acquire pidlock", err)
	}
	s.pidlock = pidlock

	// First status publication: any error here (a short write included)
	// is fatal with exit code 111, not a warning, since no control
	// client can yet be relying on a stale record.
	tmp := filepath.Join(ctlDir, "status.tmp")
	final := filepath.Join(ctlDir, "status")
	if err := s.rec.Publish(tmp, final); err != nil {
		return fatalExit(111, "initial status publication", err)
	}

	ctlLock, err := os.OpenFile(filepath.Join(ctlDir, "lock.control"), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fatalExit(100, "open client lock file", err)
	}
	s.ctlLock = ctlLock

	fifoOut, err := openFIFO(filepath.Join(ctlDir, "ctl.out"))
	if err != nil {
		return fatalExit(100, "open ctl.out", err)
	}
	s.fifoOut = fifoOut

	fifoIn, err := openFIFO(filepath.Join(ctlDir, "ctl.in"))
	if err != nil {
		return fatalExit(100, "open ctl.in", err)
	}
	s.fifoIn = fifoIn

	return nil
}

// openFIFO creates path as a FIFO if it doesn't already exist and
// opens it read/write. Opening read/write (rather than read-only) is
// what keeps the fd readable without EOF when no client currently has
// it open — we are always our own second end.
func openFIFO(path string) (*os.File, error) {
	if err := unix.Mkfifo(path, 0600); err != nil && !os.IsExist(err) {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR, 0)
}

// serviceBoot starts the initial run for each slot per the boot-time
// flags read by setupService, matching service_boot().
func (s *Supervisor) serviceBoot() {
	if s.hasLog {
		s.subsvExec(SlotLog, RunStart)
	}

	main := s.slots[SlotMain]
	if s.flagDown {
		main.wantDown = true
		s.markDirty()
		return
	}
	if s.flagOnce {
		main.isOnce = true
	}
	s.subsvExec(SlotMain, RunStart)
}
