// Package remoteadapter wraps a pooled remote.Conn/remote.Handle pair
// into the backend.Session contract, so the VFD cache can treat a
// remote slot identically to a local one (spec.md §4.3). Remote
// sessions never join the LRU ring (spec §3 invariant 4): IsRemote
// reports true so the caller can skip them.
package remoteadapter

import (
	"os"

	"github.com/vfdstore/vfd/backend"
	"github.com/vfdstore/vfd/pool"
	"github.com/vfdstore/vfd/remote"
	"github.com/vfdstore/vfd/router"
)

// Adapter opens remote sessions against a shared connection pool.
type Adapter struct {
	pool *pool.Pool
}

// New creates an Adapter backed by pool p.
func New(p *pool.Pool) *Adapter {
	return &Adapter{pool: p}
}

// Open dials (or reuses) the pooled connection for class's endpoint and
// opens class.UnixPath on it. flags is passed through mostly as given:
// the caller (vfd.Manager) owns the spec §4.3 sanitization of the flags
// it *stores* for a slot's later reopens (stripping O_CREAT/O_TRUNC/
// O_EXCL, forcing O_APPEND). The one thing Open enforces itself is that
// a write-intending open which is NOT a create — i.e. a reopen of an
// existing write-opened slot — always carries O_APPEND, since the
// remote write model has no other form of resumable write.
func (a *Adapter) Open(class router.Classification, flags int, perm os.FileMode) (backend.Session, error) {
	conn, err := a.pool.Get(class.Protocol, class.Host, class.Port, class.Options)
	if err != nil {
		return nil, err
	}
	create := flags&os.O_CREATE != 0
	write := flags&(os.O_WRONLY|os.O_RDWR) != 0
	if write && !create {
		flags |= os.O_APPEND
	}
	h, err := conn.Open(class.UnixPath, flags, perm, class.Replica())
	if err != nil {
		return nil, err
	}
	if create {
		// spec §4.3: "on create also sync then chmod(mode)".
		if err := h.Sync(); err != nil {
			_ = h.Close()
			return nil, err
		}
		if err := conn.Chmod(class.UnixPath, perm); err != nil {
			_ = h.Close()
			return nil, err
		}
	}
	return &session{conn: conn, h: h, path: class.UnixPath, write: write}, nil
}

type session struct {
	conn  remote.Conn
	h     remote.Handle
	path  string
	write bool
}

func (s *session) Read(buf []byte) (int, error) {
	return s.h.Read(buf)
}

func (s *session) Write(buf []byte) (int, error) {
	return s.h.Write(buf)
}

// Seek implements backend.Session. A write-opened remote session cannot
// seek (spec §4.3); the caller must track its logical position itself
// and detect drift via Tell instead.
func (s *session) Seek(off int64, whence int) (int64, error) {
	if s.write {
		return 0, backend.ErrSeekNotSupported
	}
	return s.h.Seek(off, whence)
}

func (s *session) Tell() (int64, error) {
	return s.h.Tell()
}

func (s *session) Sync() error {
	return s.h.Sync()
}

// Truncate implements backend.Session as close-delete/recreate-reopen:
// most remote drivers (HDFS) have no in-place truncate. The new Handle
// is wrapped in a fresh session and returned via TruncateResult so the
// VFD cache can swap its slot to it (spec §4.3, §8 scenario "temp file
// shrink on remote back-end").
func (s *session) Truncate(off int64) (backend.TruncateResult, error) {
	if err := s.h.Close(); err != nil {
		return backend.TruncateResult{}, err
	}
	if err := s.conn.Truncate(s.path, off); err != nil {
		return backend.TruncateResult{}, err
	}
	flags := os.O_RDWR | os.O_APPEND
	if !s.write {
		flags = os.O_RDONLY
	}
	h, err := s.conn.Open(s.path, flags, 0, 0)
	if err != nil {
		return backend.TruncateResult{}, err
	}
	replacement := &session{conn: s.conn, h: h, path: s.path, write: s.write}
	return backend.TruncateResult{Session: replacement}, nil
}

func (s *session) Close() error {
	return s.h.Close()
}

// IsRemote implements backend.Session: always true for this adapter.
func (s *session) IsRemote() bool { return true }

var _ backend.Session = (*session)(nil)
