// Package vfd implements the Virtual File Descriptor cache (spec.md
// §3, §4.2): an array of slots that multiplexes an unbounded number of
// logical file handles over a bounded number of kernel file
// descriptors, transparently closing and reopening the least-recently
// used local handle to stay under the process's FD budget.
package vfd

import (
	"io"
	"os"
	"syscall"

	"github.com/google/uuid"
	"github.com/vfdstore/vfd/backend"
	"github.com/vfdstore/vfd/backend/local"
	"github.com/vfdstore/vfd/backend/remoteadapter"
	"github.com/vfdstore/vfd/config"
	"github.com/vfdstore/vfd/lib/atexit"
	"github.com/vfdstore/vfd/pool"
	"github.com/vfdstore/vfd/router"
	"github.com/vfdstore/vfd/vfderrors"
	"github.com/vfdstore/vfd/vfdlog"
)

// Manager is the process-lifetime context object that owns every piece
// of global mutable state named in spec §9: the slot array, free list,
// LRU ring, allocated-desc table, remote connection pool, and temp-file
// counter. It is not safe for concurrent use — spec §5 specifies a
// single-threaded scheduling model with no internal locking.
type Manager struct {
	cfg           *config.Config
	local         *local.Backend
	remoteAdapter *remoteadapter.Adapter
	pool          *pool.Pool

	slots      []slot
	nfile      int
	maxSafeFds int

	descs *descTable

	tempCounter  int64
	currentSubID int64
	evictions    int64

	exitHandle atexit.FnHandle
}

// SlotInfo is a read-only snapshot of one virtually-open slot, for the
// debug HTTP surface (package vfdhttp).
type SlotInfo struct {
	Handle         File
	Path           string
	Remote         bool
	PhysicallyOpen bool
	Temporary      bool
	SeekPos        int64
}

// NewManager probes the FD budget (spec §4.6) and constructs a Manager
// ready to serve the public operations in spec §6. It registers an
// atexit hook so every temp and transaction-scoped slot, plus the
// entire remote connection pool, is released even on an unclean exit.
func NewManager(cfg *config.Config) (*Manager, error) {
	maxSafe, err := setMaxSafeFds(cfg.MaxFilesPerProcess)
	if err != nil {
		return nil, err
	}

	var syncMode local.SyncMode
	switch cfg.SyncMode {
	case "off":
		syncMode = local.SyncOff
	case "fdatasync":
		syncMode = local.SyncData
	default:
		syncMode = local.SyncFull
	}

	p := pool.New()
	m := &Manager{
		cfg:           cfg,
		local:         local.New(syncMode),
		remoteAdapter: remoteadapter.New(p),
		pool:          p,
		maxSafeFds:    maxSafe,
		descs:         newDescTable(),
		slots:         make([]slot, 1),
	}
	m.grow()
	m.exitHandle = atexit.Register(m.AtProcExit)
	return m, nil
}

// SetCurrentSubID tells the Manager which subtransaction id should be
// recorded on a CLOSE_AT_EOXACT temp file opened from this point on
// (spec §4.5). The surrounding transaction manager is expected to call
// this whenever it enters or leaves a subtransaction; 0 means top
// level.
func (m *Manager) SetCurrentSubID(id int64) {
	m.currentSubID = id
}

// NFile returns the current LRU ring size, equal by invariant I1 to the
// count of locally, physically open slots.
func (m *Manager) NFile() int { return m.nfile }

// MaxSafeFds returns the FD budget computed at construction time.
func (m *Manager) MaxSafeFds() int { return m.maxSafeFds }

// NAllocatedDescs returns the current allocated-desc table occupancy.
func (m *Manager) NAllocatedDescs() int { return m.descs.count() }

// Evictions returns the lifetime count of LRU evictions performed by
// release_lru_file, for the debug HTTP surface's eviction counter.
func (m *Manager) Evictions() int64 { return m.evictions }

// PoolEntries returns the number of distinct remote endpoints currently
// pooled, for the debug HTTP surface's connection-pool introspection.
func (m *Manager) PoolEntries() int { return m.pool.Entries() }

// DebugSlots snapshots every virtually-open slot for the debug HTTP
// surface's /debug/vfds dump. It never touches slot state.
func (m *Manager) DebugSlots() []SlotInfo {
	var out []SlotInfo
	for i := 1; i < len(m.slots); i++ {
		s := &m.slots[i]
		if s.free() {
			continue
		}
		out = append(out, SlotInfo{
			Handle:         File(i),
			Path:           s.path,
			Remote:         s.isRemote(),
			PhysicallyOpen: s.physicallyOpen(),
			Temporary:      s.flags&flagTemporary != 0,
			SeekPos:        s.seekPos,
		})
	}
	return out
}

func (m *Manager) route(path string) (router.Classification, error) {
	return router.Route(path)
}

// ---- slot allocation (allocate_vfd / free_vfd, spec §3, §4.2) ----

// grow doubles the slot array (minimum 32 total slots including the
// sentinel), preserving existing contents and chaining the new slots
// onto the free list. Existing File indices remain valid: copying into
// a larger slice never renumbers live elements, only relocates the
// backing array, which callers never hold a pointer into.
func (m *Manager) grow() {
	oldLen := len(m.slots)
	newLen := oldLen * 2
	if newLen < config.InitialProbeDefault {
		newLen = config.InitialProbeDefault
	}
	grown := make([]slot, newLen)
	copy(grown, m.slots)
	m.slots = grown

	prevHead := m.slots[0].nextFree
	for i := oldLen; i < newLen; i++ {
		if i == newLen-1 {
			m.slots[i].nextFree = prevHead
		} else {
			m.slots[i].nextFree = i + 1
		}
	}
	m.slots[0].nextFree = oldLen
}

func (m *Manager) allocateVfd() int {
	if m.slots[0].nextFree == 0 {
		m.grow()
	}
	idx := m.slots[0].nextFree
	m.slots[0].nextFree = m.slots[idx].nextFree
	m.slots[idx].nextFree = 0
	return idx
}

func (m *Manager) freeVfd(idx int) {
	m.slots[idx].reset()
	m.slots[idx].nextFree = m.slots[0].nextFree
	m.slots[0].nextFree = idx
}

func (m *Manager) handle(f File) (int, error) {
	idx := int(f)
	if idx <= 0 || idx >= len(m.slots) || m.slots[idx].free() {
		return 0, vfderrors.NewInvalidHandle(idx)
	}
	return idx, nil
}

// ---- FD budget / eviction (release_lru_file, spec §4.2) ----

func (m *Manager) ensureBudget(op string) error {
	for m.nfile+m.descs.count() >= m.maxSafeFds {
		if !m.releaseLRUFile() {
			return vfderrors.NewBudgetExhausted(op, nil)
		}
	}
	return nil
}

// releaseLRUFile evicts the least-recently-used local slot: it snapshots
// the back-end's current position into seekPos, closes the kernel FD,
// and leaves the slot virtually open. It never frees the slot.
func (m *Manager) releaseLRUFile() bool {
	idx, ok := m.lruEvictLeastRecent()
	if !ok {
		return false
	}
	m.evictions++
	s := &m.slots[idx]
	pos, err := s.session.Tell()
	if err != nil {
		pos = unknownPos
	}
	s.seekPos = pos
	if err := s.session.Close(); err != nil {
		vfdlog.Warnf(vfdlog.StringObject(s.path), "eviction: error closing kernel fd: %v", err)
	}
	s.session = nil
	return true
}

// basicOpen implements spec §4.3's local open retry: on EMFILE/ENFILE,
// evict exactly one LRU slot and retry once.
func (m *Manager) basicOpen(path string, flags int, mode os.FileMode) (backend.Session, error) {
	sess, err := m.local.Open(path, flags, mode)
	if err != nil && local.ClassifyOpenError(err) && m.releaseLRUFile() {
		sess, err = m.local.Open(path, flags, mode)
	}
	return sess, err
}

// ---- file_access: the re-open protocol (spec §4.2) ----

func (m *Manager) fileAccess(idx int) error {
	s := &m.slots[idx]

	if s.physicallyOpen() {
		if !s.isRemote() && !m.lruAtHead(idx) {
			m.lruMoveToHead(idx)
		}
		return nil
	}

	if err := m.ensureBudget("file_access"); err != nil {
		return err
	}

	correlateID := uuid.NewString()
	var sess backend.Session
	var err error
	if s.isRemote() {
		sess, err = m.remoteAdapter.Open(s.class, s.openFlags, s.openMode)
	} else {
		sess, err = m.local.Open(s.path, s.openFlags, s.openMode)
	}
	if err != nil {
		return vfderrors.NewReopenFailed(s.path, correlateID, err)
	}
	s.session = sess

	write := s.openFlags&(os.O_WRONLY|os.O_RDWR) != 0
	switch {
	case !s.isRemote():
		if _, serr := sess.Seek(s.seekPos, io.SeekStart); serr != nil {
			return vfderrors.NewReopenFailed(s.path, correlateID, serr)
		}
	case !write:
		if _, serr := sess.Seek(s.seekPos, io.SeekStart); serr != nil {
			return vfderrors.NewReopenFailed(s.path, correlateID, serr)
		}
	default:
		pos, terr := sess.Tell()
		if terr != nil {
			return vfderrors.NewReopenFailed(s.path, correlateID, terr)
		}
		if pos != s.seekPos {
			return vfderrors.NewReopenFailed(s.path, correlateID,
				vfderrors.NewPositionMismatch(s.path, s.seekPos, pos))
		}
	}

	if !s.isRemote() {
		m.lruInsertHead(idx)
	}
	return nil
}

// ---- sanitization of stored open flags (spec §4.2, §9) ----

func sanitizeOpenFlags(flags int, remote bool) int {
	flags &^= os.O_CREATE | os.O_TRUNC | os.O_EXCL
	if remote && flags&(os.O_WRONLY|os.O_RDWR) != 0 {
		flags |= os.O_APPEND
	}
	return flags
}

// ---- public operations (spec §6) ----

// PathOpen implements path_open.
func (m *Manager) PathOpen(path string, flags int, mode os.FileMode) (File, error) {
	class, err := router.Route(path)
	if err != nil {
		return 0, err
	}

	var sess backend.Session
	if class.Kind == router.Local {
		if err := m.ensureBudget("path_open"); err != nil {
			return 0, err
		}
		sess, err = m.basicOpen(class.UnixPath, flags, mode)
	} else {
		// Acquire the remote handle before allocating a slot: the
		// remote open itself may recursively open metadata VFDs that
		// grow the array first (spec §4.2, §8 scenario 6).
		sess, err = m.remoteAdapter.Open(class, flags, mode)
	}
	if err != nil {
		return 0, vfderrors.NewBackendIO("open", path, err)
	}

	idx := m.allocateVfd()
	s := &m.slots[idx]
	s.path = path
	s.class = class
	s.session = sess
	s.openFlags = sanitizeOpenFlags(flags, class.Kind == router.Remote)
	s.openMode = mode
	s.seekPos = 0
	s.flags = 0

	if class.Kind == router.Local {
		m.lruInsertHead(idx)
	}
	return File(idx), nil
}

// FileNameOpen implements file_name_open: path is relative to the
// configured temp root.
func (m *Manager) FileNameOpen(relativePath string, flags int, mode os.FileMode) (File, error) {
	return m.PathOpen(m.cfg.TempRoot+string(os.PathSeparator)+relativePath, flags, mode)
}

// openLocalRaw opens path directly through the local back-end without
// routing, for callers (the temp-file manager) that already know the
// path is local and want the raw error to test with os.IsNotExist.
func (m *Manager) openLocalRaw(path string, flags int, mode os.FileMode) (File, error) {
	if err := m.ensureBudget("open_temporary_file"); err != nil {
		return 0, err
	}
	sess, err := m.basicOpen(path, flags, mode)
	if err != nil {
		return 0, err
	}
	idx := m.allocateVfd()
	s := &m.slots[idx]
	s.path = path
	s.class = router.Classification{Kind: router.Local, UnixPath: path}
	s.session = sess
	s.openFlags = sanitizeOpenFlags(flags, false)
	s.openMode = mode
	s.seekPos = 0
	s.flags = 0
	m.lruInsertHead(idx)
	return File(idx), nil
}

// FileClose implements file_close.
func (m *Manager) FileClose(f File) error {
	idx, err := m.handle(f)
	if err != nil {
		return err
	}
	s := &m.slots[idx]

	var closeErr error
	if s.physicallyOpen() {
		if !s.isRemote() {
			m.lruRemove(idx)
		}
		closeErr = s.session.Close()
		s.session = nil
	}

	if s.flags&flagTemporary != 0 {
		if rmErr := local.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			vfdlog.Warnf(vfdlog.StringObject(s.path), "file_close: failed to unlink temp file: %v", rmErr)
		}
	}

	m.freeVfd(idx)
	if closeErr != nil {
		return vfderrors.NewBackendIO("close", s.path, closeErr)
	}
	return nil
}

// FileUnlink implements file_unlink: force TEMPORARY, then close.
func (m *Manager) FileUnlink(f File) error {
	idx, err := m.handle(f)
	if err != nil {
		return err
	}
	m.slots[idx].flags |= flagTemporary
	return m.FileClose(f)
}

// FileRead implements file_read (retry=false) and file_read_intr.
func (m *Manager) FileRead(f File, buf []byte, retry bool) (int, error) {
	idx, err := m.handle(f)
	if err != nil {
		return 0, err
	}
	if err := m.fileAccess(idx); err != nil {
		return 0, err
	}
	s := &m.slots[idx]
	for {
		n, rerr := s.session.Read(buf)
		if rerr != nil {
			if retry && isEINTR(rerr) {
				continue
			}
			if rerr == io.EOF {
				s.seekPos += int64(n)
				return n, io.EOF
			}
			s.seekPos = unknownPos
			return n, vfderrors.NewBackendIO("read", s.path, rerr)
		}
		s.seekPos += int64(n)
		return n, nil
	}
}

// FileReadIntr implements file_read_intr: read with EINTR retry.
func (m *Manager) FileReadIntr(f File, buf []byte) (int, error) {
	return m.FileRead(f, buf, true)
}

// FileWrite implements file_write: writes always retry on EINTR.
func (m *Manager) FileWrite(f File, buf []byte) (int, error) {
	idx, err := m.handle(f)
	if err != nil {
		return 0, err
	}
	if err := m.fileAccess(idx); err != nil {
		return 0, err
	}
	s := &m.slots[idx]
	for {
		n, werr := s.session.Write(buf)
		if werr != nil {
			if isEINTR(werr) {
				continue
			}
			s.seekPos = unknownPos
			return n, vfderrors.NewBackendIO("write", s.path, werr)
		}
		s.seekPos += int64(n)
		return n, nil
	}
}

// FileSeek implements file_seek.
func (m *Manager) FileSeek(f File, off int64, whence int) (int64, error) {
	idx, err := m.handle(f)
	if err != nil {
		return 0, err
	}
	if err := m.fileAccess(idx); err != nil {
		return 0, err
	}
	s := &m.slots[idx]
	pos, serr := s.session.Seek(off, whence)
	if serr != nil {
		s.seekPos = unknownPos
		return 0, vfderrors.NewBackendIO("seek", s.path, serr)
	}
	s.seekPos = pos
	return pos, nil
}

// FileNonVirtualTell implements file_non_virtual_tell.
func (m *Manager) FileNonVirtualTell(f File) (int64, error) {
	idx, err := m.handle(f)
	if err != nil {
		return 0, err
	}
	if err := m.fileAccess(idx); err != nil {
		return 0, err
	}
	s := &m.slots[idx]
	pos, terr := s.session.Tell()
	if terr != nil {
		s.seekPos = unknownPos
		return 0, vfderrors.NewBackendIO("tell", s.path, terr)
	}
	s.seekPos = pos
	return pos, nil
}

// FileSync implements file_sync.
func (m *Manager) FileSync(f File) error {
	idx, err := m.handle(f)
	if err != nil {
		return err
	}
	if err := m.fileAccess(idx); err != nil {
		return err
	}
	s := &m.slots[idx]
	if serr := s.session.Sync(); serr != nil {
		s.seekPos = unknownPos
		return vfderrors.NewBackendIO("sync", s.path, serr)
	}
	return nil
}

// FileTruncate implements file_truncate. A remote back-end may have to
// close, truncate, and reopen the underlying resource (backend §4.3);
// when it does, FileTruncate verifies the post-reopen tell matches the
// requested length, surfacing a mismatch as PositionMismatch.
func (m *Manager) FileTruncate(f File, off int64) error {
	idx, err := m.handle(f)
	if err != nil {
		return err
	}
	if err := m.fileAccess(idx); err != nil {
		return err
	}
	s := &m.slots[idx]
	res, terr := s.session.Truncate(off)
	if terr != nil {
		s.seekPos = unknownPos
		return vfderrors.NewBackendIO("truncate", s.path, terr)
	}
	if res.Session != nil {
		s.session = res.Session
		pos, err := s.session.Tell()
		if err != nil || pos != off {
			s.seekPos = unknownPos
			return vfderrors.NewPositionMismatch(s.path, off, pos)
		}
		s.seekPos = pos
	}
	return nil
}

// RemovePath implements remove_path. Preserving the published (and
// POSIX-inverted) contract: it returns 1 on SUCCESS and 0 on FAILURE,
// never an error value — do not mistake a 0 return for "no error".
func (m *Manager) RemovePath(path string, recursive bool) int {
	class, err := m.route(path)
	if err != nil {
		return 0
	}
	if class.Kind == router.Remote {
		conn, cerr := m.pool.Get(class.Protocol, class.Host, class.Port, class.Options)
		if cerr != nil {
			return 0
		}
		if err := conn.Delete(class.UnixPath); err != nil {
			return 0
		}
		return 1
	}
	var rmErr error
	if recursive {
		rmErr = os.RemoveAll(class.UnixPath)
	} else {
		rmErr = os.Remove(class.UnixPath)
	}
	if rmErr != nil {
		return 0
	}
	return 1
}

// MakeDirectory implements make_directory.
func (m *Manager) MakeDirectory(path string, mode os.FileMode) error {
	class, err := m.route(path)
	if err != nil {
		return err
	}
	if class.Kind == router.Remote {
		conn, err := m.pool.Get(class.Protocol, class.Host, class.Port, class.Options)
		if err != nil {
			return err
		}
		return conn.Mkdir(class.UnixPath, mode)
	}
	return local.MkdirAll(class.UnixPath, mode)
}

// CloseAllVfds implements close_all_vfds: forces every virtually-open
// slot to the kernel-closed state without freeing it.
func (m *Manager) CloseAllVfds() {
	for i := 1; i < len(m.slots); i++ {
		s := &m.slots[i]
		if !s.physicallyOpen() {
			continue
		}
		if !s.isRemote() {
			m.lruRemove(i)
		}
		if pos, err := s.session.Tell(); err == nil {
			s.seekPos = pos
		} else {
			s.seekPos = unknownPos
		}
		if err := s.session.Close(); err != nil {
			vfdlog.Warnf(vfdlog.StringObject(s.path), "close_all_vfds: %v", err)
		}
		s.session = nil
	}
}

func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if errno, ok := e.(syscall.Errno); ok {
			return errno == syscall.EINTR
		}
		if pe, ok := e.(*os.PathError); ok {
			e = pe.Err
			continue
		}
		if u, ok := e.(unwrapper); ok {
			e = u.Unwrap()
			continue
		}
		break
	}
	return false
}
