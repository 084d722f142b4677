package sizeindex

import (
	"sort"

	"github.com/go-git/gitstore"
)

// MemoryIndex is a fully-decoded, in-memory object-size index.
// Positions are split into a 24-bit bucket (idx-positions that fit
// in 3 bytes) and a 32-bit bucket, both sorted ascending; sizes are
// split into an i32 bucket (non-negative entries are the size
// directly) and an i64 overflow bucket (a negative i32 entry -(k+1)
// points at sizes64[k]).
type MemoryIndex struct {
	pos24   []uint32 // ascending, each < 1<<24
	pos32   []uint32 // ascending, each >= 1<<24
	sizes32 []int32  // parallel to pos24 followed by pos32
	sizes64 []int64
}

// position24Limit is one past the largest position the 24-bit bucket
// can hold.
const position24Limit = 1 << 24

// SizeAtPosition implements the spec's size_at_position query: it
// returns (size, true) when pos is indexed, or (NotIndexed, false)
// when the caller must fall back to reading the pack.
func (idx *MemoryIndex) SizeAtPosition(pos int64) (int64, bool) {
	if pos < 0 {
		return NotIndexed, false
	}

	var k int
	var ok bool
	if pos < position24Limit {
		k, ok = search32(idx.pos24, uint32(pos))
	} else {
		j, found := search32(idx.pos32, uint32(pos))
		if found {
			k, ok = len(idx.pos24)+j, true
		}
	}
	if !ok {
		return NotIndexed, false
	}

	s := idx.sizes32[k]
	if s >= 0 {
		return int64(s), true
	}
	i := int(-s) - 1
	if i < 0 || i >= len(idx.sizes64) {
		return NotIndexed, false
	}
	return idx.sizes64[i], true
}

func search32(haystack []uint32, v uint32) (int, bool) {
	i := sort.Search(len(haystack), func(i int) bool { return haystack[i] >= v })
	if i < len(haystack) && haystack[i] == v {
		return i, true
	}
	return 0, false
}

// entry is one (idx-position, inflated size) pair collected while
// scanning a pack's objects during a write.
type entry struct {
	pos  uint32
	size int64
}

// Writer accumulates (position, size) pairs for objects whose
// inflated size met the configured threshold, then produces the
// corresponding MemoryIndex.
type Writer struct {
	entries []entry
}

// Add records that the object at idx-position pos inflates to size
// bytes. Callers only add entries for sizes at or above
// pack.minBytesForObjectSizeIndex; positions never added are
// implicitly "not indexed".
func (w *Writer) Add(pos uint32, size int64) {
	w.entries = append(w.entries, entry{pos, size})
}

// Len reports how many positions have been recorded.
func (w *Writer) Len() int { return len(w.entries) }

// Index builds the MemoryIndex from everything added so far.
func (w *Writer) Index() (*MemoryIndex, error) {
	entries := make([]entry, len(w.entries))
	copy(entries, w.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	idx := &MemoryIndex{}
	for _, e := range entries {
		if e.pos < position24Limit {
			idx.pos24 = append(idx.pos24, e.pos)
		} else {
			idx.pos32 = append(idx.pos32, e.pos)
		}
	}

	idx.sizes32 = make([]int32, 0, len(entries))
	byPos := make(map[uint32]int64, len(entries))
	for _, e := range entries {
		byPos[e.pos] = e.size
	}
	for _, p := range append(append([]uint32{}, idx.pos24...), idx.pos32...) {
		size := byPos[p]
		if size > int64(maxInt32) || size < 0 {
			idx.sizes64 = append(idx.sizes64, size)
			idx.sizes32 = append(idx.sizes32, int32(-len(idx.sizes64)))
			continue
		}
		idx.sizes32 = append(idx.sizes32, int32(size))
	}

	return idx, nil
}

const maxInt32 = 1<<31 - 1

// ErrUnsupportedSizeIndex is re-exported for callers that only import
// this package, mirroring gitstore.ErrUnsupportedSizeIndex.
var ErrUnsupportedSizeIndex = gitstore.ErrUnsupportedSizeIndex
