// Package local implements the local POSIX back-end adapter (spec.md
// §4.3's "Local" column): plain os.File operations, with EINTR retried
// at this layer for writes and close. Reads are not retried here; the
// opt-in read retry lives in vfd.Manager.FileRead (spec §5).
package local

import (
	"io"
	"os"
	"syscall"

	"github.com/vfdstore/vfd/backend"
	"github.com/vfdstore/vfd/lib/file"
	"github.com/vfdstore/vfd/vfderrors"
)

// SyncMode selects the durability level of Session.Sync.
type SyncMode int

const (
	// SyncFull calls fsync: full durability.
	SyncFull SyncMode = iota
	// SyncData is accepted as a mode, but Session.Sync treats it exactly
	// like SyncFull: it calls os.File.Sync (fsync). No fdatasync call is
	// made.
	SyncData
	// SyncOff makes Sync a no-op, trading durability for speed.
	SyncOff
)

// Backend is the local POSIX adapter. It carries no state beyond the
// sync mode: every open is a fresh os.File.
type Backend struct {
	Sync SyncMode
}

// New creates a local Backend with the given durability mode.
func New(mode SyncMode) *Backend {
	return &Backend{Sync: mode}
}

// Open opens path with flags/perm, matching os.OpenFile exactly — the
// VFD cache is responsible for the EMFILE/ENFILE evict-and-retry policy
// (spec §4.2's BasicOpen), not this adapter.
func (b *Backend) Open(path string, flags int, perm os.FileMode) (backend.Session, error) {
	f, err := file.OpenFile(path, flags, perm)
	if err != nil {
		return nil, err
	}
	return &session{f: f, mode: b.Sync}, nil
}

type session struct {
	f    *os.File
	mode SyncMode
}

// Read implements backend.Session. It never retries on EINTR itself:
// the opt-in retry (spec §4.2, §5) is done by vfd.Manager.FileRead,
// which calls Read again for as long as it gets EINTR when the caller
// set the retry flag.
func (s *session) Read(buf []byte) (int, error) {
	return s.f.Read(buf)
}

// Write implements backend.Session, retrying unconditionally on EINTR
// (spec §5) and promoting a short write with errno==0 to ENOSPC
// (spec §4.2).
func (s *session) Write(buf []byte) (int, error) {
	for {
		n, err := s.f.Write(buf)
		if err == nil && n < len(buf) {
			return n, syscall.ENOSPC
		}
		if isEINTR(err) {
			continue
		}
		return n, err
	}
}

// Seek implements backend.Session via lseek64 semantics (os.File.Seek
// already uses the 64-bit offset on every platform this module
// targets).
func (s *session) Seek(off int64, whence int) (int64, error) {
	return s.f.Seek(off, whence)
}

// Tell implements backend.Session as lseek(0, SEEK_CUR).
func (s *session) Tell() (int64, error) {
	return s.f.Seek(0, io.SeekCurrent)
}

// Sync implements backend.Session per the configured durability mode.
func (s *session) Sync() error {
	switch s.mode {
	case SyncOff:
		return nil
	default:
		return s.f.Sync()
	}
}

// Truncate implements backend.Session as a plain ftruncate; the local
// adapter never needs to replace the Session.
func (s *session) Truncate(off int64) (backend.TruncateResult, error) {
	if err := s.f.Truncate(off); err != nil {
		return backend.TruncateResult{}, err
	}
	return backend.TruncateResult{}, nil
}

// Close implements backend.Session, retrying on EINTR (spec §5).
func (s *session) Close() error {
	for {
		err := s.f.Close()
		if isEINTR(err) {
			continue
		}
		return err
	}
}

// IsRemote implements backend.Session: local sessions participate in
// the LRU ring (spec §3 invariant 4).
func (s *session) IsRemote() bool { return false }

func isEINTR(err error) bool {
	return err != nil && errnoIs(err, syscall.EINTR)
}

func errnoIs(err error, target syscall.Errno) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return errno == target
		}
		if pe, ok := err.(*os.PathError); ok {
			err = pe.Err
			continue
		}
		if u, ok := err.(unwrapper); ok {
			err = u.Unwrap()
			continue
		}
		return false
	}
	return false
}

// MkdirAll creates dir and its parents (used by the temp-file manager's
// ENOENT-of-parent retry, spec §4.5).
func MkdirAll(dir string, perm os.FileMode) error {
	return file.MkdirAll(dir, perm)
}

// Remove unlinks path. It is exported because the temp-file manager
// (spec §4.5) and RemovePath (spec §6) both need raw unlink without
// going through a VFD handle.
func Remove(path string) error {
	return os.Remove(path)
}

// Compile-time contract check.
var _ backend.Session = (*session)(nil)

// ClassifyOpenError reports whether err is the kind of resource
// exhaustion the VFD cache should respond to with one eviction+retry
// pass (spec §4.3: "on EMFILE/ENFILE, evict one LRU slot and retry
// once").
func ClassifyOpenError(err error) bool {
	return errnoIs(err, syscall.EMFILE) || errnoIs(err, syscall.ENFILE)
}

// WrapIOError wraps a raw back-end error as vfderrors.BackendIOError.
func WrapIOError(op, path string, err error) error {
	return vfderrors.NewBackendIO(op, path, err)
}
