// Package file provides OS-file helpers shared by the local back-end
// adapter: opening with the flag set the VFD layer expects, and
// creating the temp-file directory tree on demand.
package file

import (
	"os"
)

// OpenFile is like os.OpenFile but funnels every local open through one
// place so platform-specific flag fixups (there are none on the
// platforms this module targets, but the seam matches where the
// teacher's equivalent helper lives) have a single home.
func OpenFile(name string, flags int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flags, perm)
}

// MkdirAll creates path and any missing parents, tolerating the
// directory already existing.
func MkdirAll(path string, perm os.FileMode) error {
	err := os.MkdirAll(path, perm)
	if err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

// Exists reports whether path exists (regardless of type).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
