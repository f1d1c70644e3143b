package vfd

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/vfdstore/vfd/config"
	"github.com/vfdstore/vfd/remote"
	"github.com/vfdstore/vfd/router"
	"github.com/vfdstore/vfd/vfderrors"
)

// descKind tags the allocated-desc table's variant (spec §4.4).
type descKind int

const (
	descLocalStream descKind = iota
	descLocalDir
	descRemoteDir
)

// allocDesc is one entry of the fixed-capacity allocated-desc table.
type allocDesc struct {
	kind    descKind
	subID   int64
	path    string
	stream  *os.File
	entries []remote.DirEntry
	cursor  int
}

// descTable is the fixed-size registry (spec §4.4), plus a
// recently-used index so repeat RemoteDir basename lookups are O(1)
// instead of re-deriving path.Base on every read_dir call.
type descTable struct {
	descs     []allocDesc
	basenames *gocache.Cache
}

func newDescTable() *descTable {
	return &descTable{
		basenames: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

func (t *descTable) count() int { return len(t.descs) }

// AllocateStream opens name as a stream desc (spec §4.4), checking
// both guards of checkDescCapacity first. The stream is a plain
// *os.File; no buffering layer is added on top of it.
func (m *Manager) AllocateStream(name string, flags int, perm os.FileMode) (int, error) {
	if err := m.checkDescCapacity("allocate_stream"); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(name, flags, perm)
	if err != nil {
		return 0, vfderrors.NewBackendIO("allocate_stream", name, err)
	}
	m.descs.descs = append(m.descs.descs, allocDesc{kind: descLocalStream, path: name, stream: f, subID: m.currentSubID})
	return len(m.descs.descs) - 1, nil
}

// AllocateDir opens path as a directory iterator (spec §4.4). Local
// paths list eagerly via os.ReadDir; remote paths fetch the full
// listing from the pooled connection up front.
func (m *Manager) AllocateDir(p string) (int, error) {
	if err := m.checkDescCapacity("allocate_dir"); err != nil {
		return 0, err
	}

	class, err := m.route(p)
	if err != nil {
		return 0, err
	}

	var entries []remote.DirEntry
	kind := descLocalDir
	if class.Kind == router.Remote {
		kind = descRemoteDir
		conn, err := m.pool.Get(class.Protocol, class.Host, class.Port, class.Options)
		if err != nil {
			return 0, err
		}
		entries, err = conn.ListDir(class.UnixPath)
		if err != nil {
			return 0, vfderrors.NewBackendIO("allocate_dir", p, err)
		}
	} else {
		dirEntries, err := os.ReadDir(class.UnixPath)
		if err != nil {
			return 0, vfderrors.NewBackendIO("allocate_dir", p, err)
		}
		entries = make([]remote.DirEntry, len(dirEntries))
		for i, de := range dirEntries {
			entries[i] = remote.DirEntry{Name: de.Name(), IsDir: de.IsDir()}
		}
	}

	m.descs.descs = append(m.descs.descs, allocDesc{
		kind:    kind,
		path:    class.UnixPath,
		entries: entries,
		subID:   m.currentSubID,
	})
	return len(m.descs.descs) - 1, nil
}

// ReadDir returns the next entry for dir desc idx, or (nil, nil) at
// end-of-listing. For RemoteDir entries it synthesizes a record whose
// name is the final path component, caching the basename split by full
// path for O(1) repeat lookups (spec §4.4).
func (m *Manager) ReadDir(idx int) (*remote.DirEntry, error) {
	if idx < 0 || idx >= len(m.descs.descs) {
		return nil, vfderrors.NewInvalidHandle(idx)
	}
	d := &m.descs.descs[idx]
	if d.cursor >= len(d.entries) {
		return nil, nil
	}
	e := d.entries[d.cursor]
	d.cursor++

	if d.kind == descRemoteDir {
		full := d.path + "/" + e.Name
		var base string
		if v, ok := m.descs.basenames.Get(full); ok {
			base = v.(string)
		} else {
			base = path.Base(full)
			m.descs.basenames.Set(full, base, gocache.DefaultExpiration)
		}
		e.Name = base
	}
	return &e, nil
}

// FreeDesc closes the underlying object and compacts the table by
// swapping the tail into idx's slot (spec §4.4).
func (m *Manager) FreeDesc(idx int) error {
	descs := m.descs.descs
	if idx < 0 || idx >= len(descs) {
		return vfderrors.NewInvalidHandle(idx)
	}
	var err error
	if descs[idx].kind == descLocalStream && descs[idx].stream != nil {
		err = descs[idx].stream.Close()
	}
	last := len(descs) - 1
	descs[idx] = descs[last]
	m.descs.descs = descs[:last]
	return err
}

// checkDescCapacity implements spec §4.4's twin pre-check for
// allocate_stream/allocate_dir: the fixed-size table has its own
// 32-entry ceiling, and the table's occupancy must also stay below
// maxSafeFds-1. Only the desc count is compared with maxSafeFds here;
// the VFD slots currently holding kernel fds (nfile) are not counted,
// and no LRU slot is evicted to make room.
func (m *Manager) checkDescCapacity(op string) error {
	if m.descs.count() >= config.MaxAllocatedDescs {
		return vfderrors.NewBudgetExhausted(op, errAllocatedDescsFull)
	}
	if m.descs.count() >= m.maxSafeFds-1 {
		return vfderrors.NewBudgetExhausted(op, errFdBudgetForDesc)
	}
	return nil
}

var (
	errAllocatedDescsFull = fmt.Errorf("allocated-desc table full (capacity %d)", config.MaxAllocatedDescs)
	errFdBudgetForDesc    = errors.New("insufficient FD budget for another allocated desc")
)
