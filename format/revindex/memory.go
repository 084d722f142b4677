package revindex

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/format/idxfile"
)

// MemoryIndex is a reverse index built by sorting a PackIndex's
// entries by offset (spec.md §4.3 "Built from idx
// (insertion-sort style)").
type MemoryIndex struct {
	offsets []int64
	ids     []gitstore.ObjectID
}

var _ Index = (*MemoryIndex)(nil)

// BuildFromIndex constructs a MemoryIndex from every entry of fwd.
func BuildFromIndex(fwd idxfile.Index) (*MemoryIndex, error) {
	it, err := fwd.EntriesByOffset()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	count, err := fwd.Count()
	if err != nil {
		return nil, err
	}

	rev := &MemoryIndex{
		offsets: make([]int64, 0, count),
		ids:     make([]gitstore.ObjectID, 0, count),
	}
	for {
		e, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rev.offsets = append(rev.offsets, e.Offset)
		rev.ids = append(rev.ids, e.ID)
	}
	return rev, nil
}

func (idx *MemoryIndex) Close() error { return nil }

func (idx *MemoryIndex) positionOf(offset int64) (int, bool) {
	i := sort.Search(len(idx.offsets), func(i int) bool { return idx.offsets[i] >= offset })
	if i < len(idx.offsets) && idx.offsets[i] == offset {
		return i, true
	}
	return 0, false
}

// FindObjectID implements Index.
func (idx *MemoryIndex) FindObjectID(offset int64) (gitstore.ObjectID, error) {
	pos, ok := idx.positionOf(offset)
	if !ok {
		return gitstore.ZeroID, fmt.Errorf("revindex: %w: offset %d", gitstore.ErrObjectNotFound, offset)
	}
	return idx.ids[pos], nil
}

// FindNextOffset implements Index.
func (idx *MemoryIndex) FindNextOffset(offset int64, packEnd int64) (int64, error) {
	pos, ok := idx.positionOf(offset)
	if !ok {
		return 0, fmt.Errorf("revindex: %w: offset %d", gitstore.ErrObjectNotFound, offset)
	}
	if pos+1 >= len(idx.offsets) {
		return packEnd, nil
	}
	return idx.offsets[pos+1], nil
}

// Positions returns the idx-position for each offset in ascending
// offset order; used by the encoder to emit the .rev position table.
func (idx *MemoryIndex) Positions(fwd idxfile.Index) ([]uint32, error) {
	byID := make(map[gitstore.ObjectID]uint32, len(idx.ids))
	it, err := fwd.Entries()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var pos uint32
	for {
		e, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		byID[e.ID] = pos
		pos++
	}

	out := make([]uint32, len(idx.ids))
	for i, id := range idx.ids {
		out[i] = byID[id]
	}
	return out, nil
}
