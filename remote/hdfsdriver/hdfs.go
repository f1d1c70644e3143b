// Package hdfsdriver adapts github.com/colinmarc/hdfs/v2 to the
// remote.Conn/remote.Handle contract, for paths of the form
// hdfs://namenode:port/path (spec.md's own worked example, §8 scenario
// 3). hdfs.FileWriter has no Seek method at all — the library's
// append-only write model is exactly the semantics spec §4.3 specifies
// for the remote back-end, no translation needed.
package hdfsdriver

import (
	"fmt"
	"io"
	"os"

	"github.com/colinmarc/hdfs/v2"
	"github.com/vfdstore/vfd/remote"
)

func init() {
	remote.Register("hdfs", Dial)
}

// Dial connects to the HDFS namenode at host:port. options is unused
// beyond what the path router already extracted (replica is supplied
// per-Open, not per-connection).
func Dial(host string, port int, options map[string]string) (remote.Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses:           []string{addr},
		UseDatanodeHostname: false,
	})
	if err != nil {
		return nil, err
	}
	return &conn{client: client}, nil
}

type conn struct {
	client *hdfs.Client
}

// Open implements remote.Conn.
func (c *conn) Open(path string, flags int, perm os.FileMode, replica int) (remote.Handle, error) {
	write := flags&(os.O_WRONLY|os.O_RDWR) != 0
	if !write {
		r, err := c.client.Open(path)
		if err != nil {
			return nil, err
		}
		return &readHandle{r: r}, nil
	}

	create := flags&os.O_CREATE != 0
	if create {
		if _, err := c.client.Stat(path); err == nil {
			// hdfs.Client.Create refuses to overwrite; the VFD-layer
			// contract for a create-for-write open is "start fresh".
			if err := c.client.Remove(path); err != nil {
				return nil, err
			}
		}
		var w *hdfs.FileWriter
		var err error
		if replica > 0 {
			w, err = c.client.CreateFile(path, replica, 0, perm)
		} else {
			w, err = c.client.Create(path)
		}
		if err != nil {
			return nil, err
		}
		return &writeHandle{w: w}, nil
	}

	// Append to an existing file (spec §4.2: re-open of a write-opened
	// remote slot always goes through this path with O_APPEND forced on
	// by sanitizeOpenFlags). The initial offset is the file's actual
	// length at open time, not zero: file_access immediately compares
	// this against the slot's saved seek_pos to detect a drifted remote
	// file (spec §4.3, §8 scenario 3).
	info, err := c.client.Stat(path)
	if err != nil {
		return nil, err
	}
	w, err := c.client.Append(path)
	if err != nil {
		return nil, err
	}
	return &writeHandle{w: w, offset: info.Size()}, nil
}

// Stat implements remote.Conn.
func (c *conn) Stat(path string) (*remote.FileInfo, error) {
	info, err := c.client.Stat(path)
	if err != nil {
		return nil, err
	}
	return &remote.FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
	}, nil
}

// Mkdir implements remote.Conn.
func (c *conn) Mkdir(path string, perm os.FileMode) error {
	return c.client.MkdirAll(path, perm)
}

// Delete implements remote.Conn.
func (c *conn) Delete(path string) error {
	return c.client.Remove(path)
}

// ListDir implements remote.Conn.
func (c *conn) ListDir(path string) ([]remote.DirEntry, error) {
	infos, err := c.client.ReadDir(path)
	if err != nil {
		return nil, err
	}
	entries := make([]remote.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = remote.DirEntry{Name: info.Name(), IsDir: info.IsDir()}
	}
	return entries, nil
}

// Chmod implements remote.Conn.
func (c *conn) Chmod(path string, perm os.FileMode) error {
	return c.client.Chmod(path, perm)
}

// Truncate implements remote.Conn. HDFS has no general in-place
// truncate; we read the surviving prefix into memory, delete, and
// recreate. This is only used for sizes small enough to be a spill-file
// shrink, which is the only case spec §4.3 exercises it for.
func (c *conn) Truncate(path string, off int64) error {
	var prefix []byte
	if off > 0 {
		r, err := c.client.Open(path)
		if err != nil {
			return err
		}
		prefix = make([]byte, off)
		_, err = r.Read(prefix)
		_ = r.Close()
		if err != nil {
			return err
		}
	}
	if err := c.client.Remove(path); err != nil {
		return err
	}
	w, err := c.client.Create(path)
	if err != nil {
		return err
	}
	if len(prefix) > 0 {
		if _, err := w.Write(prefix); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// Close implements remote.Conn.
func (c *conn) Close() error {
	return c.client.Close()
}

type readHandle struct {
	r *hdfs.FileReader
}

func (h *readHandle) Read(p []byte) (int, error)  { return h.r.Read(p) }
func (h *readHandle) Write([]byte) (int, error)   { return 0, os.ErrInvalid }
func (h *readHandle) Seek(off int64, whence int) (int64, error) {
	return h.r.Seek(off, whence)
}
func (h *readHandle) Tell() (int64, error) { return h.r.Seek(0, io.SeekCurrent) }
func (h *readHandle) Sync() error          { return nil }
func (h *readHandle) Close() error         { return h.r.Close() }

type writeHandle struct {
	w      *hdfs.FileWriter
	offset int64
}

func (h *writeHandle) Read([]byte) (int, error) { return 0, os.ErrInvalid }

func (h *writeHandle) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	h.offset += int64(n)
	return n, err
}

// Seek is not supported on a write handle: HDFS append streams have no
// in-place seek (spec §4.3). Callers must not invoke it.
func (h *writeHandle) Seek(int64, int) (int64, error) {
	return 0, os.ErrInvalid
}

func (h *writeHandle) Tell() (int64, error) { return h.offset, nil }
func (h *writeHandle) Sync() error          { return h.w.Flush() }
func (h *writeHandle) Close() error         { return h.w.Close() }
