// Package status implements the fixed-size binary status record
// published for a supervised service and its atomic write-to-temp +
// rename publication.
package status

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// Size is the fixed on-disk/wire size of a status record, in bytes.
const Size = 70

// Offsets into the record.
const (
	offPID        = 0
	offUptime     = 4
	offSuperFlags = 16
	offMainPID    = 18
	offMainWhen   = 22
	offMainFlags  = 34
	offLogPID     = 36
	offLogWhen    = 40
	offLogFlags   = 52
)

// Supervisor-level flag bits (offset 16).
const (
	FlagExiting byte = 1 << 0
	FlagHasLog  byte = 1 << 1
)

// Per-slot flag bits (offsets 34 and 52).
const (
	SlotUp    byte = 1 << 0
	SlotReset byte = 1 << 1
	SlotPause byte = 1 << 2
	SlotWant  byte = 1 << 3
	SlotOnce  byte = 1 << 4
)

// timestampSize is the width of the transition timestamp fields. The
// original on-disk format encodes a TAI-like 12-byte structure; this
// module encodes the same 12 bytes as an 8-byte Unix seconds value
// followed by a 4-byte nanosecond remainder, which preserves the
// 12-bytes-per-timestamp wire layout without depending on any
// non-stdlib time-encoding library.
const timestampSize = 12

// Record is the mutable in-memory buffer backing the published status
// file. All mutator methods operate in place, matching
// binstat_setflags()/binstat_pidchange() in perpetrate.c.
type Record struct {
	buf [Size]byte
}

// New builds the initial record for a supervisor that just started.
func New(pid int, when time.Time) *Record {
	r := &Record{}
	putUint32(r.buf[offPID:], uint32(pid))
	putTimestamp(r.buf[offUptime:], when)
	putTimestamp(r.buf[offMainWhen:], when)
	putTimestamp(r.buf[offLogWhen:], when)
	return r
}

func putUint32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b[:4], v)
}

func putTimestamp(b []byte, t time.Time) {
	binary.BigEndian.PutUint64(b[0:8], uint64(t.Unix()))
	binary.BigEndian.PutUint32(b[8:12], uint32(t.Nanosecond()))
}

// SetSuperFlags updates the supervisor-level flag byte (offset 16).
func (r *Record) SetSuperFlags(exiting, hasLog bool) {
	var f byte
	if exiting {
		f |= FlagExiting
	}
	if hasLog {
		f |= FlagHasLog
	}
	r.buf[offSuperFlags] = f
}

// SlotFlags is the decoded set of per-slot flag inputs; see
// binstat_setflags() in perpetrate.c for the derivation rules.
type SlotFlags struct {
	PID      int
	IsReset  bool
	IsPaused bool
	WantDown bool
	IsOnce   bool
}

// SetSlotFlags updates the flag byte for the main (isLog=false) or log
// (isLog=true) slot.
func (r *Record) SetSlotFlags(isLog bool, f SlotFlags) {
	var flags byte
	if f.PID != 0 {
		flags |= SlotUp
		if f.IsReset {
			flags |= SlotReset
		}
		if f.IsPaused {
			flags |= SlotPause
		}
	}

	if f.PID != 0 {
		if (f.IsReset && !f.WantDown) || (f.WantDown && !f.IsReset) {
			flags |= SlotWant
		}
	} else if !f.WantDown {
		flags |= SlotWant
	}

	if f.IsOnce {
		flags |= SlotOnce
	}

	off := offMainFlags
	if isLog {
		off = offLogFlags
	}
	r.buf[off] = flags
}

// SetSlotPID updates the pid and transition timestamp for a slot.
func (r *Record) SetSlotPID(isLog bool, pid int, when time.Time) {
	off := offMainPID
	whenOff := offMainWhen
	if isLog {
		off = offLogPID
		whenOff = offLogWhen
	}
	putUint32(r.buf[off:], uint32(pid))
	putTimestamp(r.buf[whenOff:], when)
}

// Bytes returns the record's current wire representation. The caller
// must not retain the returned slice across further mutation.
func (r *Record) Bytes() []byte {
	return r.buf[:]
}

// Publish writes the record to tmpPath and atomically renames it to
// finalPath. The caller decides what to do with a returned error: the
// initial publication during setup treats a short write as fatal,
// while steady-state publication from the event loop only logs it.
func (r *Record) Publish(tmpPath, finalPath string) error {
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open status temp file: %w", err)
	}

	n, werr := f.Write(r.Bytes())
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write status temp file: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close status temp file: %w", cerr)
	}
	if n < Size {
		return fmt.Errorf("short write on status temp file: wrote %d of %d bytes", n, Size)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename status file into place: %w", err)
	}
	return nil
}

// Parse decodes a wire-format status record, used by tests that want
// to assert on published output without re-deriving offsets.
func Parse(b []byte) (pid int, mainPID int, logPID int, superFlags byte, err error) {
	if len(b) != Size {
		return 0, 0, 0, 0, fmt.Errorf("status record must be %d bytes, got %d", Size, len(b))
	}
	pid = int(binary.BigEndian.Uint32(b[offPID:]))
	mainPID = int(binary.BigEndian.Uint32(b[offMainPID:]))
	logPID = int(binary.BigEndian.Uint32(b[offLogPID:]))
	superFlags = b[offSuperFlags]
	return pid, mainPID, logPID, superFlags, nil
}
