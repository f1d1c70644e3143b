package vfd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vfdstore/vfd/config"
	"github.com/vfdstore/vfd/remote"
	"github.com/vfdstore/vfd/remote/remotetest"
	"github.com/vfdstore/vfd/vfderrors"
)

// TestAllocateStreamOpensAndFrees exercises allocate_stream/free_desc
// against a local path (spec §4.4).
func TestAllocateStreamOpensAndFrees(t *testing.T) {
	m := newTestManager(t, 100)
	dir := t.TempDir()
	path := filepath.Join(dir, "stream")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	idx, err := m.AllocateStream(path, os.O_RDONLY, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, m.descs.count())

	buf := make([]byte, 16)
	n, err := m.descs.descs[idx].stream.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))

	require.NoError(t, m.FreeDesc(idx))
	assert.Equal(t, 0, m.descs.count())
}

// TestAllocateDirReadDirLocal exercises allocate_dir/read_dir/free_desc
// against a local directory, including exhausting the iterator to a
// clean (nil, nil) end-of-listing result.
func TestAllocateDirReadDirLocal(t *testing.T) {
	m := newTestManager(t, 100)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("y"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	idx, err := m.AllocateDir(dir)
	require.NoError(t, err)

	seen := map[string]bool{}
	isDir := map[string]bool{}
	for {
		entry, err := m.ReadDir(idx)
		require.NoError(t, err)
		if entry == nil {
			break
		}
		seen[entry.Name] = true
		isDir[entry.Name] = entry.IsDir
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
	assert.True(t, seen["sub"])
	assert.True(t, isDir["sub"])
	assert.False(t, isDir["a"])

	// Iterator stays exhausted rather than wrapping around.
	entry, err := m.ReadDir(idx)
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, m.FreeDesc(idx))
}

// TestAllocateDirReadDirRemoteUsesBasenameCache exercises allocate_dir
// against a remote.remotetest.Fake directory and verifies that read_dir
// synthesizes basenames, caching repeat lookups in descTable.basenames
// (spec §4.4's "recently used index for O(1) repeat lookup").
func TestAllocateDirReadDirRemoteUsesBasenameCache(t *testing.T) {
	fake := remotetest.New()
	remote.Register("descremote", fake.Dial)
	fake.SetContents("/data/one", []byte("1"))
	fake.SetContents("/data/two", []byte("22"))

	m := newTestManager(t, 100)

	idx, err := m.AllocateDir("descremote://namenode:9000/data")
	require.NoError(t, err)
	assert.Equal(t, descRemoteDir, m.descs.descs[idx].kind)

	names := map[string]bool{}
	for {
		entry, err := m.ReadDir(idx)
		require.NoError(t, err)
		if entry == nil {
			break
		}
		names[entry.Name] = true
	}
	assert.True(t, names["one"])
	assert.True(t, names["two"])

	// The basename cache must now hold an entry for each listed path.
	assert.Positive(t, m.descs.basenames.ItemCount())

	require.NoError(t, m.FreeDesc(idx))
}

// TestCheckDescCapacityEnforcesTableLimit exercises checkDescCapacity's
// fixed-size ceiling (spec §4.4): the Nth+1 allocate_stream past
// config.MaxAllocatedDescs must fail with BudgetExhausted even though
// the FD budget itself has plenty of headroom.
func TestCheckDescCapacityEnforcesTableLimit(t *testing.T) {
	m := newTestManager(t, 10000)
	dir := t.TempDir()

	for i := 0; i < config.MaxAllocatedDescs; i++ {
		path := filepath.Join(dir, "f")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		_, err := m.AllocateStream(path, os.O_RDONLY, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, config.MaxAllocatedDescs, m.descs.count())

	path := filepath.Join(dir, "overflow")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := m.AllocateStream(path, os.O_RDONLY, 0)
	require.Error(t, err)
	assert.True(t, vfderrors.IsBudgetExhausted(err))

	// FreeDesc always compacts by swapping the tail into idx, so
	// freeing index 0 repeatedly drains the table regardless of order.
	for m.descs.count() > 0 {
		require.NoError(t, m.FreeDesc(0))
	}
}

// TestCheckDescCapacityEnforcesFdBudget exercises checkDescCapacity's
// second guard: once nAllocatedDescs reaches maxSafeFds-1,
// allocate_stream must fail even though the 32-entry table itself
// still has room.
func TestCheckDescCapacityEnforcesFdBudget(t *testing.T) {
	m := newTestManager(t, 2)
	dir := t.TempDir()

	path := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	idx, err := m.AllocateStream(path, os.O_RDONLY, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, m.descs.count())

	path2 := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(path2, []byte("x"), 0o644))
	_, err = m.AllocateStream(path2, os.O_RDONLY, 0)
	require.Error(t, err, "maxSafeFds=2 leaves no headroom for a second desc")
	assert.True(t, vfderrors.IsBudgetExhausted(err))

	require.NoError(t, m.FreeDesc(idx))
	checkInvariants(t, m)
}

// TestFreeDescCompactsByTailSwap exercises free_desc's swap-with-tail
// compaction (spec §4.4): freeing a non-tail entry must not disturb the
// identity of entries never touched, only relocate the tail.
func TestFreeDescCompactsByTailSwap(t *testing.T) {
	m := newTestManager(t, 100)
	dir := t.TempDir()

	var paths []string
	for _, name := range []string{"a", "b", "c"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		paths = append(paths, p)
		_, err := m.AllocateStream(p, os.O_RDONLY, 0)
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.descs.count())

	// Free the first entry ("a"); "c" (the tail) must now occupy slot 0.
	require.NoError(t, m.FreeDesc(0))
	assert.Equal(t, 2, m.descs.count())
	assert.Equal(t, paths[2], m.descs.descs[0].path)
	assert.Equal(t, paths[1], m.descs.descs[1].path)

	require.NoError(t, m.FreeDesc(0))
	require.NoError(t, m.FreeDesc(0))
	assert.Equal(t, 0, m.descs.count())
}
