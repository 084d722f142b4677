// Package commitgraph implements the chunked commit-graph
// acceleration structure ("CGPH"): constant-time commit
// parent/generation lookups by object id (spec.md §4.6), grounded on
// plumbing/format/commitgraph/v2 in the teacher.
//
// Only a single, non-chained graph file is supported: spec.md never
// asks for Git's split/"commit-graph chain" multi-file layout, so
// the teacher's chain.go (parent-index delegation across a stack of
// graph files) has no home here and was left unwired; see DESIGN.md.
package commitgraph

import (
	"errors"
	"io"
	"time"

	"github.com/go-git/gitstore"
)

// ErrMalformedCommitGraph marks a structural failure: bad magic,
// unsupported version or hash id, missing required chunk, or a
// corrupt extra-edge list.
var ErrMalformedCommitGraph = errors.New("commitgraph: malformed commit graph")

// VersionSupported is the only commit-graph file format version this
// package reads or writes.
const VersionSupported = 1

// hashVersionSHA1 is the only hash-id byte this package accepts
// (gitstore is SHA-1 only).
const hashVersionSHA1 = 1

// NotComputedGeneration is the generation number stored by a writer
// that did not compute generations (spec.md §3: "graph written by a
// writer that didn't compute").
const NotComputedGeneration = 0

// UnknownGeneration names the generation of a commit that is not
// present in the graph at all (spec.md §3: "commit outside graph"). It
// is never a value stored on disk, and no lookup in this package
// returns it: IndexOf reports an absent commit with a
// gitstore.ErrObjectNotFound-wrapping error.
const UnknownGeneration = ^uint64(0)

// CommitData is the reduced commit record the graph stores:
// everything needed to walk history without inflating the commit
// object itself.
type CommitData struct {
	TreeID        gitstore.ObjectID
	ParentIndexes []uint32
	Generation    uint64
	When          time.Time
}

// Index is the read side of a commit-graph file.
type Index interface {
	io.Closer

	// IndexOf returns the graph position of id, or a
	// gitstore.ErrObjectNotFound-wrapping error if id is absent.
	IndexOf(id gitstore.ObjectID) (uint32, error)

	// IDAt returns the object id stored at graph position i.
	IDAt(i uint32) (gitstore.ObjectID, error)

	// CommitDataAt returns the commit record at graph position i.
	CommitDataAt(i uint32) (*CommitData, error)

	// Len returns the number of commits covered by the graph.
	Len() uint32
}
