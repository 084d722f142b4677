// Package revindex implements the pack reverse index: offset → object
// id, and offset → next offset (spec.md §4.3). It supports both an
// in-memory form built from a PackIndex, and the on-disk ".rev" v1
// format ("RIDX"), grounded on plumbing/format/revfile in the teacher.
package revindex

import (
	"errors"
	"io"

	"github.com/go-git/gitstore"
)

// ErrInvalidReverseIndex marks a structural failure in a .rev file,
// such as bad magic or a truncated table (spec.md §4.3). An
// unsupported version is reported with gitstore.ErrUnsupportedVersion
// and a checksum mismatch with gitstore.ErrTrailerMismatch.
var ErrInvalidReverseIndex = errors.New("revindex: invalid reverse index")

// VersionSupported is the only .rev version this package reads or writes.
const VersionSupported = 1

var magic = []byte{'R', 'I', 'D', 'X'}

const (
	hashIDSHA1 = 1
	hashSize   = 20
)

// Index is the read side of a pack's reverse index.
type Index interface {
	io.Closer

	// FindObjectID returns the id of the object stored at offset.
	FindObjectID(offset int64) (gitstore.ObjectID, error)

	// FindNextOffset returns the smallest offset strictly greater
	// than offset, or packEnd if none exists (spec.md §3 invariant:
	// "findNextOffset(o) = min_{o'>o} o' ∨ packLen−20").
	FindNextOffset(offset int64, packEnd int64) (int64, error)
}
