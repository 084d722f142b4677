// Package gitstore implements the Git content-addressable object
// database: pack files and their forward/reverse/size indexes, the
// commit-graph acceleration structure, the loose-object directory, and
// the layered block cache that sits in front of them.
package gitstore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/go-git/gitstore/hash"
)

// ObjectID is the 20-byte SHA-1 digest naming an Object. It is a
// value type: comparisons, map keys and equality all work on the
// zero-allocation array form.
type ObjectID [hash.Size]byte

// ZeroID is the all-zero ObjectID, used as a sentinel for "no object".
var ZeroID ObjectID

// NewObjectID computes the ObjectID of kind/content the way Git does:
// SHA1("<kind> <len>\0" || content).
func NewObjectID(kind Kind, content []byte) ObjectID {
	h := hash.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(content))
	h.Write(content)
	var id ObjectID
	copy(id[:], h.Sum(nil))
	return id
}

// FromHex parses a 40-character hexadecimal string into an ObjectID.
func FromHex(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != hash.HexSize {
		return id, fmt.Errorf("gitstore: invalid object id length %d", len(s))
	}
	n, err := hex.Decode(id[:], []byte(s))
	if err != nil {
		return id, fmt.Errorf("gitstore: invalid object id %q: %w", s, err)
	}
	if n != hash.Size {
		return id, fmt.Errorf("gitstore: short object id %q", s)
	}
	return id, nil
}

// FromBytes copies a 20-byte slice into an ObjectID.
func FromBytes(b []byte) (ObjectID, error) {
	var id ObjectID
	if len(b) != hash.Size {
		return id, fmt.Errorf("gitstore: invalid object id length %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the lowercase hexadecimal representation.
func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero ObjectID.
func (id ObjectID) IsZero() bool {
	return id == ZeroID
}

// Compare orders two ObjectIDs big-endian lexicographically, matching
// on-disk idx ordering.
func (id ObjectID) Compare(other ObjectID) int {
	return bytes.Compare(id[:], other[:])
}

// HasPrefix reports whether id starts with the given abbreviated byte
// prefix (see AbbrevID).
func (id ObjectID) HasPrefix(prefix []byte) bool {
	return bytes.HasPrefix(id[:], prefix)
}

// WriteTo implements io.WriterTo.
func (id ObjectID) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(id[:])
	return int64(n), err
}

// AbbrevID is an ObjectID prefix of at least 4 bytes, used for
// short-hash lookups (spec.md §3: "prefix ≥ 4 bytes").
type AbbrevID []byte

// MinAbbrevLen is the shortest prefix accepted by PackIndex.FindByPrefix
// and friends.
const MinAbbrevLen = 4

// Valid reports whether the abbreviation meets the minimum length.
func (a AbbrevID) Valid() bool {
	return len(a) >= MinAbbrevLen && len(a) <= hash.Size
}
