// Package sizeindex implements the pack object-size index v1: a
// sparse map from idx-position to inflated object size, letting a
// reader answer "is this object not larger than N bytes" without
// zlib-inflating it (spec.md §4.4).
//
// No example in the retrieval pack carries Git's on-disk
// object-size-index format (JGit's PackObjectSizeIndexV1 did not
// survive distillation into the pack), so the wire layout below is
// this package's own invention rather than a byte-for-byte port. It
// follows the semantics spec.md §4.4 specifies exactly (split
// position/size buckets, biased i64 index, reserved 128-bit bucket)
// and reuses idxfile's encode/decode idiom (explicit state, trailing
// SHA-1 trailer) as its nearest grounding in this codebase.
package sizeindex

import (
	"errors"
)

// ErrInvalidSizeIndex marks a structural failure such as bad magic or
// truncated tables. An unsupported version is reported with
// gitstore.ErrUnsupportedVersion and a checksum mismatch with
// gitstore.ErrTrailerMismatch.
var ErrInvalidSizeIndex = errors.New("sizeindex: invalid size index")

// VersionSupported is the only size-index version this package
// reads or writes.
const VersionSupported = 1

var magic = []byte{'S', 'I', 'Z', 'E'}

// Position-encoding and size-encoding scheme bytes. schemeSplit is
// the only one this package implements; any other value read from a
// file is rejected with gitstore.ErrUnsupportedSizeIndex (spec.md
// §4.4: "unknown position-encoding byte").
const (
	schemeSplit  = 0 // 24-bit + 32-bit position buckets, i32/i64 size buckets
	scheme128Bit = 1 // reserved; sizes stored as 128-bit values
)

// NotIndexed is returned by MemoryIndex.SizeAtPosition when the
// position was below the configured threshold at write time: the
// caller must fall back to reading the pack (spec.md §4.4 invariant:
// "absence ≡ size not indexed").
const NotIndexed = -1

const (
	pos24Size  = 3
	pos32Size  = 4
	size32Size = 4
	size64Size = 8
)
