package remoteadapter

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vfdstore/vfd/pool"
	"github.com/vfdstore/vfd/remote"
	"github.com/vfdstore/vfd/remote/remotetest"
	"github.com/vfdstore/vfd/router"
)

func testClass(t *testing.T, protocol, unixPath string) router.Classification {
	t.Helper()
	return router.Classification{
		Kind:     router.Remote,
		Protocol: protocol,
		Host:     "namenode",
		Port:     9000,
		Options:  map[string]string{"replica": "3"},
		UnixPath: unixPath,
	}
}

func TestOpenCreateSyncsAndChmods(t *testing.T) {
	fake := remotetest.New()
	remote.Register("radaptertest1", fake.Dial)
	a := New(pool.New())

	sess, err := a.Open(testClass(t, "radaptertest1", "/x"), os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	assert.True(t, sess.IsRemote())
	require.NoError(t, sess.Close())
}

func TestOpenReadMissingFails(t *testing.T) {
	fake := remotetest.New()
	remote.Register("radaptertest2", fake.Dial)
	a := New(pool.New())

	_, err := a.Open(testClass(t, "radaptertest2", "/nope"), os.O_RDONLY, 0)
	assert.Error(t, err)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	fake := remotetest.New()
	remote.Register("radaptertest3", fake.Dial)
	a := New(pool.New())

	w, err := a.Open(testClass(t, "radaptertest3", "/f"), os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, w.Close())

	r, err := a.Open(testClass(t, "radaptertest3", "/f"), os.O_RDONLY, 0)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestSeekOnWriteSessionIsUnsupported(t *testing.T) {
	fake := remotetest.New()
	remote.Register("radaptertest4", fake.Dial)
	a := New(pool.New())

	w, err := a.Open(testClass(t, "radaptertest4", "/f"), os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)

	_, err = w.Seek(0, 0)
	assert.ErrorIs(t, err, os.ErrInvalid)
}

func TestReopenForAppendForcesOAppend(t *testing.T) {
	fake := remotetest.New()
	remote.Register("radaptertest5", fake.Dial)
	a := New(pool.New())

	w1, err := a.Open(testClass(t, "radaptertest5", "/f"), os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = w1.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	// Reopen without O_CREATE: adapter must force O_APPEND so the write
	// resumes at the end of the existing data rather than overwriting it.
	w2, err := a.Open(testClass(t, "radaptertest5", "/f"), os.O_WRONLY, 0o644)
	require.NoError(t, err)
	pos, err := w2.Tell()
	require.NoError(t, err)
	assert.EqualValues(t, 3, pos)
}

func TestTruncateSwapsSession(t *testing.T) {
	fake := remotetest.New()
	remote.Register("radaptertest6", fake.Dial)
	a := New(pool.New())

	w, err := a.Open(testClass(t, "radaptertest6", "/f"), os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = w.Write([]byte("abcdef"))
	require.NoError(t, err)

	result, err := w.Truncate(3)
	require.NoError(t, err)
	require.NotNil(t, result.Session, "remote truncate must replace the session (close+recreate+reopen)")

	pos, err := result.Session.Tell()
	require.NoError(t, err)
	assert.EqualValues(t, 3, pos)
}
