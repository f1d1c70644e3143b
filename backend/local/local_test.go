package local

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	b := New(SyncFull)
	w, err := b.Open(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	require.NoError(t, err)
	n, err := w.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	r, err := b.Open(path, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer r.Close()
	buf := make([]byte, 11)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf))
	assert.False(t, r.IsRemote())
}

func TestSeekAndTell(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	b := New(SyncFull)
	s, err := b.Open(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write([]byte("0123456789"))
	require.NoError(t, err)

	off, err := s.Seek(3, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 3, off)

	pos, err := s.Tell()
	require.NoError(t, err)
	assert.EqualValues(t, 3, pos)
}

func TestTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	b := New(SyncFull)
	s, err := b.Open(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write([]byte("0123456789"))
	require.NoError(t, err)

	res, err := s.Truncate(4)
	require.NoError(t, err)
	assert.Nil(t, res.Session, "local truncate never swaps the session")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 4, info.Size())
}

func TestOpenMissingDirFails(t *testing.T) {
	b := New(SyncFull)
	_, err := b.Open(filepath.Join(t.TempDir(), "nope", "f"), os.O_RDONLY, 0)
	require.Error(t, err)
}

func TestMkdirAllAndRemove(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, MkdirAll(nested, 0o755))

	file := filepath.Join(nested, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.NoError(t, Remove(file))
	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestSyncOffIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	b := New(SyncOff)
	s, err := b.Open(path, os.O_WRONLY|os.O_CREATE, 0o666)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Sync())
}
