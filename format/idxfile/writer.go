package idxfile

import (
	"math"
	"sort"

	"github.com/go-git/gitstore"
)

// object is one (id, offset, crc32) triple collected while a pack is
// being parsed or written.
type object struct {
	id     gitstore.ObjectID
	offset int64
	crc    uint32
}

// Writer accumulates (id, offset, crc32) triples observed while
// scanning or writing a pack, then produces the corresponding
// MemoryIndex — grounded on plumbing/format/idxfile.Writer in the
// teacher, generalized to emit the 64-bit offset escape table instead
// of panicking past 2GiB packs.
type Writer struct {
	checksum gitstore.ObjectID
	objects  []object
}

// Add records one object's (id, offset, crc32).
func (w *Writer) Add(id gitstore.ObjectID, offset int64, crc uint32) {
	w.objects = append(w.objects, object{id, offset, crc})
}

// SetChecksum records the pack's trailing SHA-1, to be embedded as
// the index's PackfileChecksum.
func (w *Writer) SetChecksum(h gitstore.ObjectID) {
	w.checksum = h
}

// Len reports how many objects have been added so far.
func (w *Writer) Len() int { return len(w.objects) }

// Index builds the MemoryIndex from everything added so far.
func (w *Writer) Index() (*MemoryIndex, error) {
	objs := make([]object, len(w.objects))
	copy(objs, w.objects)
	sort.Slice(objs, func(i, j int) bool { return objs[i].id.Compare(objs[j].id) < 0 })

	idx := &MemoryIndex{Version: VersionSupported, PackChecksum: w.checksum}
	idx.IDs = make([]gitstore.ObjectID, len(objs))
	idx.CRC32 = make([]uint32, len(objs))
	idx.Offset32 = make([]uint32, len(objs))

	fanCount := [256]uint32{}
	for i, o := range objs {
		idx.IDs[i] = o.id
		idx.CRC32[i] = o.crc

		if o.offset > math.MaxInt32 {
			idx.Offset32[i] = 0x80000000 | uint32(len(idx.Offset64))
			idx.Offset64 = append(idx.Offset64, uint64(o.offset))
		} else {
			idx.Offset32[i] = uint32(o.offset)
		}

		fanCount[o.id[0]]++
	}

	var running uint32
	for i := 0; i < 256; i++ {
		running += fanCount[i]
		idx.Fanout[i] = running
	}

	return idx, nil
}
