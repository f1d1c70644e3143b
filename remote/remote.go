// Package remote declares the contract the VFD layer expects from a
// remote distributed file system client (spec §1: "out of scope,
// specified only via the interfaces the core consumes") and a small
// registry so concrete drivers (remote/hdfsdriver, remote/sftpdriver)
// can be selected by protocol name from the path router's output.
package remote

import (
	"io"
	"os"
	"time"
)

// FileInfo is the subset of stat information the VFD layer needs.
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
	Mode    os.FileMode
}

// DirEntry is one entry returned by ListDir.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Conn is a live connection to one remote endpoint (spec §3's
// "remote_fs"), shared by every VFD slot that opens a file on that
// endpoint. Conn is never closed by the VFD layer; its lifetime is the
// process lifetime (spec §5).
type Conn interface {
	// Open opens path. flags follows the os.O_* bits; replica is the
	// requested replication factor for a create-for-write open (0 means
	// "use the driver's default"); perm is used only when creating.
	Open(path string, flags int, perm os.FileMode, replica int) (Handle, error)
	Stat(path string) (*FileInfo, error)
	Mkdir(path string, perm os.FileMode) error
	Delete(path string) error
	ListDir(path string) ([]DirEntry, error)
	Chmod(path string, perm os.FileMode) error
	// Truncate sets path's length to off. Real distributed file systems
	// rarely support in-place truncation; drivers implement this as
	// best they can (see remote/hdfsdriver for the read-prefix/recreate
	// fallback) and vfd.Manager.FileTruncate verifies the result (spec
	// §4.3).
	Truncate(path string, off int64) error
	// Close releases driver-internal resources. The VFD layer never
	// calls this during normal operation (spec §5); it exists for
	// process-exit teardown of the pool itself.
	Close() error
}

// Handle is an open remote file (spec §3's "remote_handle").
type Handle interface {
	io.Reader
	io.Writer
	// Seek repositions a read-opened handle. Write-opened handles do
	// not support Seek; callers must not call it on one (spec §4.3).
	Seek(offset int64, whence int) (int64, error)
	// Tell returns the current logical offset.
	Tell() (int64, error)
	Sync() error
	Close() error
}

// Dialer connects to a remote endpoint and returns a live Conn. Each
// registered protocol supplies one.
type Dialer func(host string, port int, options map[string]string) (Conn, error)

var dialers = map[string]Dialer{}

// Register installs a Dialer for protocol. Driver packages call this
// from an init function, the way the teacher's backend packages
// register themselves with fs.Register.
func Register(protocol string, dialer Dialer) {
	dialers[protocol] = dialer
}

// Lookup returns the Dialer registered for protocol, if any.
func Lookup(protocol string) (Dialer, bool) {
	d, ok := dialers[protocol]
	return d, ok
}
