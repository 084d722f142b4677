// Package packfile implements the pack file reader and delta engine
// (spec.md §4.5): parsing the "PACK" header/trailer, decoding object
// headers, inflating base and delta objects, and applying
// ofs-delta/ref-delta instruction streams. Grounded on
// plumbing/format/packfile's scanner.go and patch_delta.go in the
// teacher, adapted from the teacher's forward-only Scanner to a
// random-access reader keyed by (PackIndex, PackReverseIndex) —
// the shape odb.Directory needs to answer point lookups by object id
// rather than to stream an incoming pack.
package packfile

import (
	"errors"

	"github.com/go-git/gitstore"
)

// Signature is the 4-byte magic at the start of every pack file.
var Signature = []byte{'P', 'A', 'C', 'K'}

// VersionSupported is the only pack format version this package
// reads or writes.
const VersionSupported = 2

// ErrMalformedPack marks a structural failure: bad signature,
// truncated header, or a bad object header. An unsupported pack
// version is reported with gitstore.ErrUnsupportedVersion instead.
var ErrMalformedPack = errors.New("packfile: malformed pack")

// DefaultMaxDeltaDepth is the default ceiling on delta chain length
// (spec.md §4.5: "configurable; default 50").
const DefaultMaxDeltaDepth = 50

// Header is the decoded 12-byte pack file header.
type Header struct {
	Version    uint32
	ObjectsQty uint32
}

// ObjectHeader is one object's on-disk header, decoded but not yet
// inflated.
type ObjectHeader struct {
	Offset int64
	Kind   gitstore.Kind // CommitKind/TreeKind/BlobKind/TagKind/OffsetDeltaKind/ReferenceDeltaKind

	// Size is the inflated length of the content that immediately
	// follows: the object body for a non-delta kind, or the whole
	// delta instruction stream (src_size + dst_size varints plus
	// instructions) for ofs-delta/ref-delta.
	Size int64

	// OffsetReference is set for OffsetDeltaKind: the absolute pack
	// offset of the delta's base object.
	OffsetReference int64

	// Reference is set for ReferenceDeltaKind: the base object's id.
	Reference gitstore.ObjectID

	// ContentOffset is where the zlib stream begins.
	ContentOffset int64
}
