package gitstore

import (
	"bytes"
	"fmt"
	"io"
)

// Kind identifies the four object types Git stores.
type Kind int8

const (
	// InvalidKind is the zero value, never a stored kind.
	InvalidKind Kind = iota
	CommitKind
	TreeKind
	BlobKind
	TagKind

	// OffsetDeltaKind and ReferenceDeltaKind only ever appear as the
	// stored_kind of a pack object (spec.md §3: "stored_kind ∈ {...,
	// ofs-delta, ref-delta}"); a fully materialized Object is never one
	// of these.
	OffsetDeltaKind
	ReferenceDeltaKind
)

func (k Kind) String() string {
	switch k {
	case CommitKind:
		return "commit"
	case TreeKind:
		return "tree"
	case BlobKind:
		return "blob"
	case TagKind:
		return "tag"
	case OffsetDeltaKind:
		return "ofs-delta"
	case ReferenceDeltaKind:
		return "ref-delta"
	default:
		return "invalid"
	}
}

// Valid reports whether k is one of the four storable object kinds.
func (k Kind) Valid() bool {
	switch k {
	case CommitKind, TreeKind, BlobKind, TagKind:
		return true
	default:
		return false
	}
}

// packTypeBits are the 3-bit type tags used in the pack object header
// (spec.md §4.5).
const (
	packTypeCommit   = 1
	packTypeTree     = 2
	packTypeBlob     = 3
	packTypeTag      = 4
	packTypeOfsDelta = 6
	packTypeRefDelta = 7
)

// KindFromPackType maps a pack object header type tag to a Kind.
func KindFromPackType(t byte) (Kind, error) {
	switch t {
	case packTypeCommit:
		return CommitKind, nil
	case packTypeTree:
		return TreeKind, nil
	case packTypeBlob:
		return BlobKind, nil
	case packTypeTag:
		return TagKind, nil
	case packTypeOfsDelta:
		return OffsetDeltaKind, nil
	case packTypeRefDelta:
		return ReferenceDeltaKind, nil
	default:
		return InvalidKind, fmt.Errorf("gitstore: %w: pack type %d", ErrCorruptObject, t)
	}
}

// PackType returns the 3-bit pack header type tag for k.
func (k Kind) PackType() (byte, error) {
	switch k {
	case CommitKind:
		return packTypeCommit, nil
	case TreeKind:
		return packTypeTree, nil
	case BlobKind:
		return packTypeBlob, nil
	case TagKind:
		return packTypeTag, nil
	case OffsetDeltaKind:
		return packTypeOfsDelta, nil
	case ReferenceDeltaKind:
		return packTypeRefDelta, nil
	default:
		return 0, fmt.Errorf("gitstore: cannot encode %v as a pack type", k)
	}
}

// Object is an immutable, content-addressed unit of storage: a
// commit, tree, blob or tag. Reader streams the content; the objects
// this module returns (MemoryObject) are already fully inflated.
type Object interface {
	ID() ObjectID
	Kind() Kind
	Size() int64
	Reader() (io.ReadCloser, error)
}

// MemoryObject is an in-memory Object, used by ObjectInserter and by
// delta reconstruction to hold a fully materialized buffer.
type MemoryObject struct {
	kind Kind
	id   ObjectID
	buf  *bytes.Buffer
}

// NewMemoryObject constructs a MemoryObject from kind and content,
// computing its ObjectID eagerly.
func NewMemoryObject(kind Kind, content []byte) *MemoryObject {
	return &MemoryObject{
		kind: kind,
		id:   NewObjectID(kind, content),
		buf:  bytes.NewBuffer(content),
	}
}

func (o *MemoryObject) ID() ObjectID { return o.id }
func (o *MemoryObject) Kind() Kind   { return o.kind }
func (o *MemoryObject) Size() int64  { return int64(o.buf.Len()) }

func (o *MemoryObject) Bytes() []byte { return o.buf.Bytes() }

func (o *MemoryObject) Reader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(o.buf.Bytes())), nil
}
