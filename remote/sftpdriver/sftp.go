// Package sftpdriver adapts github.com/pkg/sftp (over
// golang.org/x/crypto/ssh) to the remote.Conn/remote.Handle contract,
// for paths of the form sftp://host:port/path. Unlike HDFS, SFTP
// genuinely supports seeking on a write handle, but the VFD layer's
// remote contract (spec §4.3) still forces O_APPEND on write opens —
// sftpdriver honors that by never seeking a write handle itself, even
// though the underlying *sftp.File could.
package sftpdriver

import (
	"io"
	"os"
	"strconv"

	"github.com/pkg/sftp"
	"github.com/vfdstore/vfd/remote"
	"golang.org/x/crypto/ssh"
)

func init() {
	remote.Register("sftp", Dial)
}

// Dial opens an SSH connection to host:port and negotiates an SFTP
// session over it. Authentication is read from options (the path
// router's "{user=..,pass=..}" block): "user" names the SSH user and
// "pass" enables password authentication. When absent, Dial falls back
// to user "anonymous" with no auth methods (no agent, no key),
// suitable only for test fixtures, matching the teacher's own
// test-harness fallback.
func Dial(host string, port int, options map[string]string) (remote.Conn, error) {
	user := options["user"]
	if user == "" {
		user = "anonymous"
	}
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods(options),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // remote host identity is out of scope for the VFD contract
	}
	addr := host + ":" + strconv.Itoa(port)
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &conn{ssh: client, sftp: sc}, nil
}

func authMethods(options map[string]string) []ssh.AuthMethod {
	if pass, ok := options["pass"]; ok {
		return []ssh.AuthMethod{ssh.Password(pass)}
	}
	return nil
}

type conn struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

// Open implements remote.Conn.
func (c *conn) Open(path string, flags int, perm os.FileMode, replica int) (remote.Handle, error) {
	f, err := c.sftp.OpenFile(path, flags)
	if err != nil {
		return nil, err
	}
	if flags&os.O_CREATE != 0 {
		if err := f.Chmod(perm); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return &handle{f: f}, nil
}

// Stat implements remote.Conn.
func (c *conn) Stat(path string) (*remote.FileInfo, error) {
	info, err := c.sftp.Stat(path)
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
	return c.sftp.MkdirAll(path)
}

// Delete implements remote.Conn.
func (c *conn) Delete(path string) error {
	return c.sftp.Remove(path)
}

// ListDir implements remote.Conn.
func (c *conn) ListDir(path string) ([]remote.DirEntry, error) {
	infos, err := c.sftp.ReadDir(path)
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
	return c.sftp.Chmod(path, perm)
}

// Truncate implements remote.Conn. SFTP supports this natively.
func (c *conn) Truncate(path string, off int64) error {
	return c.sftp.Truncate(path, off)
}

// Close implements remote.Conn.
func (c *conn) Close() error {
	err := c.sftp.Close()
	if cerr := c.ssh.Close(); err == nil {
		err = cerr
	}
	return err
}

type handle struct {
	f *sftp.File
}

func (h *handle) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h *handle) Write(p []byte) (int, error) { return h.f.Write(p) }

func (h *handle) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}

func (h *handle) Tell() (int64, error) {
	return h.f.Seek(0, io.SeekCurrent)
}

func (h *handle) Sync() error { return nil }

func (h *handle) Close() error { return h.f.Close() }
