package vfd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vfdstore/vfd/backend/local"
	"github.com/vfdstore/vfd/config"
	"github.com/vfdstore/vfd/vfdlog"
)

// tempFileName builds the path per spec §4.5's naming scheme. The
// unique form appends "_<pid>_<extent>.<counter>"; the non-unique,
// process-shareable form appends only "_<extent>".
func (m *Manager) tempFileName(label string, extent int, unique bool) string {
	dir := filepath.Join(m.cfg.TempRoot, config.TempSubdir)
	base := fmt.Sprintf("%s_%s", config.TempFilePrefix, label)
	if !unique {
		return filepath.Join(dir, fmt.Sprintf("%s_%d", base, extent))
	}
	m.tempCounter++
	return filepath.Join(dir, fmt.Sprintf("%s_%d_%d.%d", base, os.Getpid(), extent, m.tempCounter))
}

// OpenTemporaryFile implements spec §4.5/§6's open_temporary_file.
func (m *Manager) OpenTemporaryFile(label string, extent int, unique, create, delOnClose, closeAtEOXact bool) (File, error) {
	path := m.tempFileName(label, extent, unique)

	flags := os.O_RDWR
	if create {
		flags |= os.O_TRUNC | os.O_CREATE
	}

	f, err := m.openLocalRaw(path, flags, 0o600)
	if os.IsNotExist(err) {
		if mkErr := local.MkdirAll(filepath.Join(m.cfg.TempRoot, config.TempSubdir), 0o700); mkErr != nil && !os.IsExist(mkErr) {
			return 0, fmt.Errorf("open_temporary_file: creating temp dir: %w", mkErr)
		}
		f, err = m.openLocalRaw(path, flags, 0o600)
	}
	if err != nil {
		return 0, fmt.Errorf("open_temporary_file: %w", err)
	}

	if delOnClose {
		m.slots[f].flags |= flagTemporary
	}
	if closeAtEOXact {
		m.slots[f].flags |= flagCloseAtEOXact
		m.slots[f].createSubID = m.currentSubID
	}
	return f, nil
}

// AtEOSubxact implements spec §4.5's subtransaction-end hook.
func (m *Manager) AtEOSubxact(isCommit bool, mySubID, parentSubID int64) {
	for i := 1; i < len(m.slots); i++ {
		s := &m.slots[i]
		if s.free() || s.flags&flagCloseAtEOXact == 0 || s.createSubID != mySubID {
			continue
		}
		if isCommit {
			s.createSubID = parentSubID
		} else {
			_ = m.FileClose(File(i))
		}
	}
	// Walk from the tail: FreeDesc moves the tail entry into the freed
	// index, and from this direction that entry has already been visited.
	for i := len(m.descs.descs) - 1; i >= 0; i-- {
		d := &m.descs.descs[i]
		if d.subID != mySubID {
			continue
		}
		if isCommit {
			d.subID = parentSubID
		} else {
			_ = m.FreeDesc(i)
		}
	}
}

// AtEOXact implements spec §4.5's top-level transaction-end hook:
// close every CLOSE_AT_EOXACT slot and every allocated desc.
func (m *Manager) AtEOXact() {
	for i := 1; i < len(m.slots); i++ {
		s := &m.slots[i]
		if !s.free() && s.flags&flagCloseAtEOXact != 0 {
			_ = m.FileClose(File(i))
		}
	}
	m.freeAllDescs()
}

// AtXactCancel implements spec §4.5's abort path: first close every
// remote handle, swallowing back-end errors (the endpoint may be
// unreachable mid-abort), then run the normal AtEOXact pass.
func (m *Manager) AtXactCancel() {
	for i := 1; i < len(m.slots); i++ {
		s := &m.slots[i]
		if s.free() || !s.isRemote() || !s.physicallyOpen() {
			continue
		}
		if err := s.session.Close(); err != nil {
			vfdlog.Warnf(nil, "xact_cancel: ignoring remote close error on %s: %v", s.path, err)
		}
		s.session = nil
	}
	m.AtEOXact()
}

// AtProcExit implements spec §4.5's process-exit hook: close every
// TEMPORARY or CLOSE_AT_EOXACT slot, free every allocated desc, and
// release all pooled remote connections.
func (m *Manager) AtProcExit() {
	for i := 1; i < len(m.slots); i++ {
		s := &m.slots[i]
		if !s.free() && s.flags&(flagTemporary|flagCloseAtEOXact) != 0 {
			_ = m.FileClose(File(i))
		}
	}
	m.freeAllDescs()
	m.pool.CloseAll()
}

func (m *Manager) freeAllDescs() {
	for len(m.descs.descs) > 0 {
		_ = m.FreeDesc(0)
	}
}

// RemovePgTempFiles implements spec §4.5's orphan sweep: unlink every
// entry under <temp-root>/pgsql_tmp/ whose name has the temp-file
// prefix, logging (without deleting) anything else.
func RemovePgTempFiles(tempRoot string) error {
	dir := filepath.Join(tempRoot, config.TempSubdir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), config.TempFilePrefix) {
			if rmErr := os.Remove(filepath.Join(dir, e.Name())); rmErr != nil {
				vfdlog.Warnf(nil, "remove_pg_temp_files: failed to remove %s: %v", e.Name(), rmErr)
			}
			continue
		}
		vfdlog.Warnf(nil, "remove_pg_temp_files: unexpected entry %s left in place", e.Name())
	}
	return nil
}
