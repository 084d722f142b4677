// Package idxfile implements the Git pack index format (".idx"): a
// mapping from object id to (offset in pack, CRC32), supporting
// prefix lookup and in-order enumeration (spec.md §4.2).
//
// Both versions Git has ever written are supported for decoding: v1
// (256-entry fanout followed by sorted (oid, offset) pairs) and v2
// (fanout, then parallel oid/crc32/offset tables with a 64-bit escape
// table for large packs). Only v2 is ever written, matching every
// Git implementation since 1.6.
package idxfile

import (
	"errors"
	"io"

	"github.com/go-git/gitstore"
)

// ErrInvalidIndex marks the structural failures this package detects:
// truncated tables, non-monotone fanout, out-of-range offset escapes
// and unexpected trailing bytes (spec.md §4.2 "Failure"). An
// unsupported version is reported with gitstore.ErrUnsupportedVersion
// and a checksum mismatch with gitstore.ErrTrailerMismatch; data that
// does not start with the v2 magic is decoded as v1. odb.Directory
// wraps any decode failure in gitstore.ErrCorruptIndex.
var ErrInvalidIndex = errors.New("idxfile: invalid index")

// VersionSupported is the only index version this package writes.
// Version 1 is accepted on read only.
const VersionSupported = 2

var (
	header      = []byte{255, 't', 'O', 'c'}
	v1Header    = [4]byte{} // v1 has no magic; it starts directly with the fanout table.
	fanoutSize  = 256
	hashSize    = 20 // SHA-1; gitstore does not support SHA-256 repositories.
	crc32Size   = 4
	offset32Sz  = 4
	offset64Sz  = 8
	trailerSize = hashSize * 2
)

// Entry is one (oid, offset, crc32) triple from the index.
type Entry struct {
	ID     gitstore.ObjectID
	Offset int64
	CRC32  uint32
}

// EntryIter enumerates Entry values, always in ObjectID order for
// Index.Entries and in ascending offset order for Index.EntriesByOffset.
type EntryIter interface {
	Next() (*Entry, error) // returns io.EOF when exhausted
	Close() error
}

// Index is the read side of a pack's forward index.
type Index interface {
	io.Closer

	// FindOffset returns the pack offset of id, or
	// gitstore.ErrObjectNotFound-wrapping error if id is absent.
	FindOffset(id gitstore.ObjectID) (int64, error)

	// FindCRC32 returns the CRC32 of the compressed object bytes for id.
	FindCRC32(id gitstore.ObjectID) (uint32, error)

	// FindPosition returns id's 0-based rank in ObjectID order, the
	// same ordering Entries walks and the same key
	// format/sizeindex.MemoryIndex.SizeAtPosition expects. Returns
	// gitstore.ErrObjectNotFound-wrapping error if id is absent.
	FindPosition(id gitstore.ObjectID) (int64, error)

	// FindByPrefix returns every (id, offset) whose id starts with
	// prefix, in id order. Zero results means "none"; one result
	// means "unique"; more than one means "ambiguous" (spec.md §6
	// open_by_prefix).
	FindByPrefix(prefix gitstore.AbbrevID) ([]Entry, error)

	// Count returns the number of objects indexed.
	Count() (int64, error)

	// Entries enumerates every object in ObjectID order.
	Entries() (EntryIter, error)

	// EntriesByOffset enumerates every object in ascending pack-offset
	// order; used by format/revindex to build the reverse mapping.
	EntriesByOffset() (EntryIter, error)

	// PackfileChecksum is the trailing 20-byte SHA-1 of the pack this
	// index belongs to (spec.md §3 invariant 4: "preceding 20 bytes
	// equal the pack's trailing 20").
	PackfileChecksum() gitstore.ObjectID
}
