package commitgraph

import (
	"encoding/binary"
	"io"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/hash"
)

// Encoder writes a MemoryIndex out in the single-file CGPH v1
// layout: header, chunk table, fanout, oid lookup, commit data, and
// (if any commit has more than two parents) an extra-edge list.
type Encoder struct {
	raw io.Writer
	w   io.Writer // raw, tee'd into h
	h   hash.Hash
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	h := hash.New()
	return &Encoder{raw: w, w: io.MultiWriter(w, h), h: h}
}

// Encode serializes idx and returns the number of bytes written.
func (e *Encoder) Encode(idx *MemoryIndex) (int64, error) {
	extraEdges := buildExtraEdges(idx)

	chunkCount := byte(3)
	tocEntries := int64(4) // 3 real chunks + terminator
	if len(extraEdges) > 0 {
		chunkCount = 4
		tocEntries = 5 // + extra-edge chunk
	}

	fanoutOff := int64(headerSize) + tocEntries*int64(chunkTableSize)
	oidLookupOff := fanoutOff + 256*4
	commitDataOff := oidLookupOff + int64(len(idx.ids))*int64(hash.Size)
	edgeOff := commitDataOff + int64(len(idx.ids))*int64(hash.Size+commitDataSize)

	var n int64
	write := func(b []byte) error {
		nn, err := e.w.Write(b)
		n += int64(nn)
		return err
	}
	writeU32 := func(v uint32) error {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		return write(b[:])
	}
	writeU64 := func(v uint64) error {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		return write(b[:])
	}

	if err := write(signature); err != nil {
		return n, err
	}
	if err := write([]byte{VersionSupported, hashVersionSHA1, chunkCount, 0}); err != nil {
		return n, err
	}

	type tocEntry struct {
		sig []byte
		off int64
	}
	toc := []tocEntry{
		{chunkSignatures[chunkOIDFanout][:], fanoutOff},
		{chunkSignatures[chunkOIDLookup][:], oidLookupOff},
		{chunkSignatures[chunkCommitData][:], commitDataOff},
	}
	if len(extraEdges) > 0 {
		toc = append(toc, tocEntry{chunkSignatures[chunkExtraEdgeList][:], edgeOff})
		toc = append(toc, tocEntry{[]byte{0, 0, 0, 0}, edgeOff + int64(len(extraEdges))*4})
	} else {
		toc = append(toc, tocEntry{[]byte{0, 0, 0, 0}, edgeOff})
	}
	for _, t := range toc {
		if err := write(t.sig); err != nil {
			return n, err
		}
		if err := writeU64(uint64(t.off)); err != nil {
			return n, err
		}
	}

	fanout := computeFanout(idx.ids)
	for _, v := range fanout {
		if err := writeU32(v); err != nil {
			return n, err
		}
	}

	for _, id := range idx.ids {
		if err := write(id[:]); err != nil {
			return n, err
		}
	}

	edgeCursor := uint32(0)
	for _, d := range idx.data {
		var parent1, parent2 uint32 = parentNone, parentNone
		switch len(d.ParentIndexes) {
		case 0:
		case 1:
			parent1 = d.ParentIndexes[0]
		case 2:
			parent1, parent2 = d.ParentIndexes[0], d.ParentIndexes[1]
		default:
			parent1 = d.ParentIndexes[0]
			parent2 = parentOctopusUsed | edgeCursor
			edgeCursor += uint32(len(d.ParentIndexes) - 1)
		}

		if err := write(d.TreeID[:]); err != nil {
			return n, err
		}
		if err := writeU32(parent1); err != nil {
			return n, err
		}
		if err := writeU32(parent2); err != nil {
			return n, err
		}
		genAndTime := d.Generation<<34 | uint64(d.When.Unix())&generationTimeMask
		if err := writeU64(genAndTime); err != nil {
			return n, err
		}
	}

	for _, v := range extraEdges {
		if err := writeU32(v); err != nil {
			return n, err
		}
	}

	sum := e.h.Sum(nil)
	if _, err := e.raw.Write(sum); err != nil {
		return n, err
	}
	n += int64(len(sum))

	return n, nil
}

// buildExtraEdges flattens every parent after the first (index 1+) of
// each octopus merge into one table, marking the last entry of each
// run.
func buildExtraEdges(idx *MemoryIndex) []uint32 {
	var out []uint32
	for _, d := range idx.data {
		if len(d.ParentIndexes) <= 2 {
			continue
		}
		for i := 1; i < len(d.ParentIndexes); i++ {
			v := d.ParentIndexes[i]
			if i == len(d.ParentIndexes)-1 {
				v |= parentOctopusLast
			}
			out = append(out, v)
		}
	}
	return out
}

func computeFanout(ids []gitstore.ObjectID) [256]uint32 {
	var fanout [256]uint32
	var count [256]uint32
	for _, id := range ids {
		count[id[0]]++
	}
	var running uint32
	for i := 0; i < 256; i++ {
		running += count[i]
		fanout[i] = running
	}
	return fanout
}
