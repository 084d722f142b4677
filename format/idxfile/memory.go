package idxfile

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/go-git/gitstore"
)

// noMapping is a sentinel for an unused fanout bucket; no code in this
// package currently reads it.
const noMapping = -1

// MemoryIndex is a fully-decoded, in-memory PackIndex. It owns no
// file handle and answers every query from slices built once at
// decode time — the layout v2 itself would use, just kept resident
// instead of memory-mapped, mirroring plumbing/format/idxfile's
// MemoryIndex in the teacher.
type MemoryIndex struct {
	Version  uint32
	Fanout   [256]uint32
	IDs      []gitstore.ObjectID // sorted ascending, length == Fanout[255]
	CRC32    []uint32            // parallel to IDs
	Offset32 []uint32            // parallel to IDs; MSB set => index into Offset64
	Offset64 []uint64

	PackChecksum gitstore.ObjectID
	IdxChecksum  gitstore.ObjectID
}

var _ Index = (*MemoryIndex)(nil)

// Close is a no-op; MemoryIndex owns no file handle.
func (idx *MemoryIndex) Close() error { return nil }

func (idx *MemoryIndex) fanoutBounds(b byte) (lo, hi int) {
	if b > 0 {
		lo = int(idx.Fanout[b-1])
	}
	hi = int(idx.Fanout[b])
	return
}

func (idx *MemoryIndex) search(id gitstore.ObjectID) (int, bool) {
	lo, hi := idx.fanoutBounds(id[0])
	pos := lo + sort.Search(hi-lo, func(i int) bool {
		return idx.IDs[lo+i].Compare(id) >= 0
	})
	if pos < hi && idx.IDs[pos] == id {
		return pos, true
	}
	return 0, false
}

func (idx *MemoryIndex) offsetAt(pos int) (int64, error) {
	o := idx.Offset32[pos]
	if o&0x80000000 == 0 {
		return int64(o), nil
	}
	i := int(o &^ 0x80000000)
	if i < 0 || i >= len(idx.Offset64) {
		return 0, fmt.Errorf("idxfile: %w: 64-bit offset escape out of range", ErrInvalidIndex)
	}
	return int64(idx.Offset64[i]), nil
}

// FindOffset implements Index.
func (idx *MemoryIndex) FindOffset(id gitstore.ObjectID) (int64, error) {
	pos, ok := idx.search(id)
	if !ok {
		return 0, gitstore.ErrObjectNotFound
	}
	return idx.offsetAt(pos)
}

// FindCRC32 implements Index.
func (idx *MemoryIndex) FindCRC32(id gitstore.ObjectID) (uint32, error) {
	pos, ok := idx.search(id)
	if !ok {
		return 0, gitstore.ErrObjectNotFound
	}
	return idx.CRC32[pos], nil
}

// FindPosition implements Index.
func (idx *MemoryIndex) FindPosition(id gitstore.ObjectID) (int64, error) {
	pos, ok := idx.search(id)
	if !ok {
		return 0, gitstore.ErrObjectNotFound
	}
	return int64(pos), nil
}

// FindByPrefix implements Index.
func (idx *MemoryIndex) FindByPrefix(prefix gitstore.AbbrevID) ([]Entry, error) {
	if !prefix.Valid() {
		return nil, fmt.Errorf("idxfile: abbreviation too short")
	}
	lo, hi := idx.fanoutBounds(prefix[0])
	start := lo + sort.Search(hi-lo, func(i int) bool {
		id := idx.IDs[lo+i]
		n := len(prefix)
		if n > len(id) {
			n = len(id)
		}
		return bytes.Compare(id[:n], prefix) >= 0
	})

	var out []Entry
	for i := start; i < hi && idx.IDs[i].HasPrefix(prefix); i++ {
		off, err := idx.offsetAt(i)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{ID: idx.IDs[i], Offset: off, CRC32: idx.CRC32[i]})
	}
	return out, nil
}

// Count implements Index.
func (idx *MemoryIndex) Count() (int64, error) {
	return int64(len(idx.IDs)), nil
}

// PackfileChecksum implements Index.
func (idx *MemoryIndex) PackfileChecksum() gitstore.ObjectID {
	return idx.PackChecksum
}

type memoryEntryIter struct {
	idx *MemoryIndex
	pos int
}

func (it *memoryEntryIter) Next() (*Entry, error) {
	if it.pos >= len(it.idx.IDs) {
		return nil, io.EOF
	}
	off, err := it.idx.offsetAt(it.pos)
	if err != nil {
		return nil, err
	}
	e := &Entry{ID: it.idx.IDs[it.pos], Offset: off, CRC32: it.idx.CRC32[it.pos]}
	it.pos++
	return e, nil
}

func (it *memoryEntryIter) Close() error { it.pos = len(it.idx.IDs); return nil }

// Entries implements Index, enumerating in ObjectID order.
func (idx *MemoryIndex) Entries() (EntryIter, error) {
	return &memoryEntryIter{idx: idx}, nil
}

type byOffsetIter struct {
	entries []Entry
	pos     int
}

func (it *byOffsetIter) Next() (*Entry, error) {
	if it.pos >= len(it.entries) {
		return nil, io.EOF
	}
	e := it.entries[it.pos]
	it.pos++
	return &e, nil
}

func (it *byOffsetIter) Close() error { it.pos = len(it.entries); return nil }

// EntriesByOffset implements Index, enumerating in ascending pack
// offset order (used by format/revindex to build the .rev table).
func (idx *MemoryIndex) EntriesByOffset() (EntryIter, error) {
	entries := make([]Entry, len(idx.IDs))
	for i := range idx.IDs {
		off, err := idx.offsetAt(i)
		if err != nil {
			return nil, err
		}
		entries[i] = Entry{ID: idx.IDs[i], Offset: off, CRC32: idx.CRC32[i]}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Offset < entries[j].Offset })
	return &byOffsetIter{entries: entries}, nil
}
