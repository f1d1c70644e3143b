package vfd

import (
	"os"

	"github.com/vfdstore/vfd/backend"
	"github.com/vfdstore/vfd/router"
)

// File is an opaque handle: a non-zero index into the slot array.
// Index 0 is the LRU ring sentinel and is never returned as a handle
// (spec §3).
type File int

// unknownPos is the seek_pos sentinel meaning "must explicit-seek on
// next file_access" (spec §3, §4.2).
const unknownPos int64 = -1

// stateFlags is the slot's bitset (spec §3).
type stateFlags uint8

const (
	flagTemporary stateFlags = 1 << iota
	flagCloseAtEOXact
)

// slot is one entry in the VFD array (spec §3). A slot is free iff
// path == "". It is virtually open iff path != "". It is physically
// open iff virtually open and session != nil.
type slot struct {
	session backend.Session
	class   router.Classification
	path    string

	flags       stateFlags
	createSubID int64

	nextFree int

	lruMoreRecent int
	lruLessRecent int

	seekPos   int64
	openFlags int
	openMode  os.FileMode
}

func (s *slot) free() bool           { return s.path == "" }
func (s *slot) virtuallyOpen() bool  { return s.path != "" }
func (s *slot) physicallyOpen() bool { return s.path != "" && s.session != nil }
func (s *slot) isRemote() bool       { return s.class.Kind == router.Remote }

// reset clears a slot back to the free state. It does not touch the
// free-list link, which the caller manages.
func (s *slot) reset() {
	s.session = nil
	s.class = router.Classification{}
	s.path = ""
	s.flags = 0
	s.createSubID = 0
	s.seekPos = 0
	s.openFlags = 0
	s.openMode = 0
}
