// Package backend defines the uniform open/read/write/seek/close/
// sync/truncate/stat contract (spec.md §4.3) that the VFD cache
// dispatches to, regardless of whether a slot is backed by the local
// POSIX adapter (package backend/local) or the remote adapter (package
// backend/remoteadapter).
package backend

import "os"

// Session is one physically-open resource: a local *os.File, or a
// remote.Handle paired with the remote.Conn it was opened on. The VFD
// cache never inspects which; it only calls through this interface.
type Session interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	// Seek repositions a local session at any time, or a read-opened
	// remote session. Write-opened remote sessions return
	// ErrSeekNotSupported; vfd.Manager.FileSeek reports that as a
	// BackendIO error and marks the slot's position unknown, and it does
	// not perform a logical seek in their place. The manager tracks such
	// a session's position only from the byte counts of its writes.
	Seek(off int64, whence int) (int64, error)
	Tell() (int64, error)
	Sync() error
	// Truncate sets the session's length. The remote adapter implements
	// this as close-truncate-reopen per spec §4.3 and returns the new
	// session via TruncateResult so the caller can swap it in.
	Truncate(off int64) (TruncateResult, error)
	Close() error
	// IsRemote reports whether this session is remote. Remote sessions
	// never participate in the LRU ring; local, physically-open ones do
	// (spec §3 invariant 4).
	IsRemote() bool
}

// TruncateResult carries the possibly-new Session a Truncate produced,
// for back-ends (remote) that must close and reopen to truncate.
type TruncateResult struct {
	// Session is non-nil only when Truncate replaced the physical
	// resource (the remote adapter's close+recreate+reopen dance). A
	// nil Session means the original one (already truncated in place)
	// is still valid — the local adapter's case.
	Session Session
}

// OpenOptions carries back-end-specific parameters for an Open call
// that don't belong on every back-end (e.g. replica count only matters
// to the remote adapter).
type OpenOptions struct {
	Replica int
}

// ErrSeekNotSupported is returned by a write-opened remote Session's
// Seek method (spec §4.3).
var ErrSeekNotSupported = os.ErrInvalid
