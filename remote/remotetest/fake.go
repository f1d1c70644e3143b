// Package remotetest provides an in-memory remote.Conn implementation
// for exercising the pool, the remote adapter, and the VFD cache's
// remote code paths without a real network dependency, the way the
// teacher's fstest package backs rclone's own back-end-independent
// tests.
package remotetest

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/vfdstore/vfd/remote"
)

// Fake is a process-local "remote" filesystem: a map of paths to
// byte slices, safe for the single dialed Conn it backs.
type Fake struct {
	mu      sync.Mutex
	files   map[string][]byte
	dialErr error
	dials   int
}

// New creates an empty Fake store.
func New() *Fake {
	return &Fake{files: map[string][]byte{}}
}

// FailNextDial makes the next Dial call return err instead of
// succeeding, then clears itself.
func (f *Fake) FailNextDial(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialErr = err
}

// Dials reports how many times Dial has been called against this store.
func (f *Fake) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// SetContents seeds path with data, as if an out-of-band writer had
// changed the file's length (spec §8 scenario 3).
func (f *Fake) SetContents(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = append([]byte(nil), data...)
}

// Dial implements remote.Dialer.
func (f *Fake) Dial(host string, port int, options map[string]string) (remote.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.dialErr != nil {
		err := f.dialErr
		f.dialErr = nil
		return nil, err
	}
	return &conn{store: f}, nil
}

type conn struct {
	store *Fake
}

func (c *conn) Open(path string, flags int, perm os.FileMode, replica int) (remote.Handle, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	write := flags&(os.O_WRONLY|os.O_RDWR) != 0
	if !write {
		data, ok := c.store.files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return &handle{store: c.store, path: path, buf: bytes.NewReader(append([]byte(nil), data...))}, nil
	}

	if flags&os.O_CREATE != 0 {
		c.store.files[path] = nil
		return &writeHandle{store: c.store, path: path, offset: 0}, nil
	}

	// Append to existing.
	data := c.store.files[path]
	return &writeHandle{store: c.store, path: path, offset: int64(len(data))}, nil
}

func (c *conn) Stat(path string) (*remote.FileInfo, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	data, ok := c.store.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &remote.FileInfo{Name: path, Size: int64(len(data)), ModTime: time.Now()}, nil
}

func (c *conn) Mkdir(path string, perm os.FileMode) error { return nil }

func (c *conn) Delete(path string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if _, ok := c.store.files[path]; !ok {
		return os.ErrNotExist
	}
	delete(c.store.files, path)
	return nil
}

func (c *conn) ListDir(path string) ([]remote.DirEntry, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	var entries []remote.DirEntry
	for p := range c.store.files {
		entries = append(entries, remote.DirEntry{Name: p})
	}
	return entries, nil
}

func (c *conn) Chmod(path string, perm os.FileMode) error { return nil }

func (c *conn) Truncate(path string, off int64) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	data, ok := c.store.files[path]
	if !ok {
		return os.ErrNotExist
	}
	if off > int64(len(data)) {
		return errors.New("fake: truncate beyond EOF not supported")
	}
	c.store.files[path] = data[:off]
	return nil
}

func (c *conn) Close() error { return nil }

type handle struct {
	store *Fake
	path  string
	buf   *bytes.Reader
}

func (h *handle) Read(p []byte) (int, error)  { return h.buf.Read(p) }
func (h *handle) Write([]byte) (int, error)   { return 0, os.ErrInvalid }
func (h *handle) Seek(off int64, whence int) (int64, error) {
	return h.buf.Seek(off, whence)
}
func (h *handle) Tell() (int64, error) { return h.buf.Seek(0, 1) }
func (h *handle) Sync() error          { return nil }
func (h *handle) Close() error         { return nil }

type writeHandle struct {
	store  *Fake
	path   string
	offset int64
}

func (h *writeHandle) Read([]byte) (int, error) { return 0, os.ErrInvalid }

func (h *writeHandle) Write(p []byte) (int, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.files[h.path] = append(h.store.files[h.path], p...)
	h.offset += int64(len(p))
	return len(p), nil
}

func (h *writeHandle) Seek(int64, int) (int64, error) { return 0, os.ErrInvalid }
func (h *writeHandle) Tell() (int64, error)           { return h.offset, nil }
func (h *writeHandle) Sync() error                    { return nil }
func (h *writeHandle) Close() error                   { return nil }

var _ remote.Conn = (*conn)(nil)
var _ remote.Handle = (*handle)(nil)
var _ remote.Handle = (*writeHandle)(nil)
