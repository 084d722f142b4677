package commitgraph

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/hash"
)

var signature = []byte{'C', 'G', 'P', 'H'}

const (
	headerSize     = 8 // signature + version + hash-version + chunk-count + base-graph-count
	chunkTableSize = 12
	commitDataSize = 16 // parent1 (4) + parent2 (4) + generation<<34|time (8)

	parentNone         = uint32(0x70000000)
	parentOctopusUsed  = uint32(0x80000000)
	parentOctopusMask  = uint32(0x7fffffff)
	parentOctopusLast  = uint32(0x80000000)
	generationTimeMask = uint64(1)<<34 - 1
)

// ReaderAt is the random-access handle a FileIndex reads through; a
// billy.File satisfies it directly.
type ReaderAt interface {
	io.ReaderAt
	io.Closer
}

// FileIndex is an Index backed by a ReaderAt, decoding chunk offsets
// once at open time and reading everything else on demand.
type FileIndex struct {
	r       ReaderAt
	fanout  [256]uint32
	offsets map[chunkType]int64
	size    int64
}

var _ Index = (*FileIndex)(nil)

// OpenFileIndex parses r's header and chunk table, then returns an
// Index reading the rest lazily.
func OpenFileIndex(r ReaderAt, size int64) (*FileIndex, error) {
	fi := &FileIndex{r: r, offsets: make(map[chunkType]int64), size: size}

	if err := fi.verifyHeader(); err != nil {
		return nil, err
	}
	if err := fi.readChunkTable(); err != nil {
		return nil, err
	}
	if err := fi.readFanout(); err != nil {
		return nil, err
	}
	return fi, nil
}

func (fi *FileIndex) verifyHeader() error {
	buf := make([]byte, headerSize)
	if _, err := fi.r.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("commitgraph: %w: %v", ErrMalformedCommitGraph, err)
	}
	if !bytes.Equal(buf[:4], signature) {
		return fmt.Errorf("commitgraph: %w: bad signature", ErrMalformedCommitGraph)
	}
	if buf[4] != VersionSupported {
		return fmt.Errorf("commitgraph: %w: unsupported version %d", gitstore.ErrUnsupportedVersion, buf[4])
	}
	if buf[5] != hashVersionSHA1 {
		return fmt.Errorf("commitgraph: %w: unsupported hash id %d", gitstore.ErrUnsupportedVersion, buf[5])
	}
	return nil
}

func (fi *FileIndex) readChunkTable() error {
	for i := 0; ; i++ {
		off := int64(headerSize + i*chunkTableSize)
		entry := make([]byte, chunkTableSize)
		if _, err := fi.r.ReadAt(entry, off); err != nil {
			return fmt.Errorf("commitgraph: %w: truncated chunk table: %v", ErrMalformedCommitGraph, err)
		}

		id := entry[:4]
		offset := int64(binary.BigEndian.Uint64(entry[4:]))

		if bytes.Equal(id, []byte{0, 0, 0, 0}) {
			break
		}

		ct, ok := chunkTypeFromBytes(id)
		if !ok {
			continue
		}
		fi.offsets[ct] = offset
	}

	for _, required := range []chunkType{chunkOIDFanout, chunkOIDLookup, chunkCommitData} {
		if _, ok := fi.offsets[required]; !ok {
			return fmt.Errorf("commitgraph: %w: missing required chunk", ErrMalformedCommitGraph)
		}
	}
	return nil
}

func (fi *FileIndex) readFanout() error {
	buf := make([]byte, 256*4)
	if _, err := fi.r.ReadAt(buf, fi.offsets[chunkOIDFanout]); err != nil {
		return fmt.Errorf("commitgraph: %w: %v", ErrMalformedCommitGraph, err)
	}
	var prev uint32
	for i := 0; i < 256; i++ {
		v := binary.BigEndian.Uint32(buf[i*4:])
		if v < prev {
			return fmt.Errorf("commitgraph: %w: non-monotone fanout", ErrMalformedCommitGraph)
		}
		fi.fanout[i] = v
		prev = v
	}
	return nil
}

// Len implements Index.
func (fi *FileIndex) Len() uint32 { return fi.fanout[255] }

// Close implements Index.
func (fi *FileIndex) Close() error { return fi.r.Close() }

// IndexOf implements Index.
func (fi *FileIndex) IndexOf(id gitstore.ObjectID) (uint32, error) {
	var lo uint32
	if id[0] > 0 {
		lo = fi.fanout[id[0]-1]
	}
	hi := fi.fanout[id[0]]

	oid := make([]byte, hash.Size)
	for lo < hi {
		mid := (lo + hi) / 2
		off := fi.offsets[chunkOIDLookup] + int64(mid)*int64(hash.Size)
		if _, err := fi.r.ReadAt(oid, off); err != nil {
			return 0, fmt.Errorf("commitgraph: %w: %v", ErrMalformedCommitGraph, err)
		}
		switch bytes.Compare(id[:], oid) {
		case 0:
			return mid, nil
		case -1:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return 0, fmt.Errorf("commitgraph: %w", gitstore.ErrObjectNotFound)
}

// IDAt implements Index.
func (fi *FileIndex) IDAt(i uint32) (gitstore.ObjectID, error) {
	if i >= fi.fanout[255] {
		return gitstore.ZeroID, fmt.Errorf("commitgraph: %w", gitstore.ErrObjectNotFound)
	}
	buf := make([]byte, hash.Size)
	off := fi.offsets[chunkOIDLookup] + int64(i)*int64(hash.Size)
	if _, err := fi.r.ReadAt(buf, off); err != nil {
		return gitstore.ZeroID, fmt.Errorf("commitgraph: %w: %v", ErrMalformedCommitGraph, err)
	}
	return gitstore.FromBytes(buf)
}

// CommitDataAt implements Index.
func (fi *FileIndex) CommitDataAt(i uint32) (*CommitData, error) {
	if i >= fi.fanout[255] {
		return nil, fmt.Errorf("commitgraph: %w", gitstore.ErrObjectNotFound)
	}

	off := fi.offsets[chunkCommitData] + int64(i)*int64(hash.Size+commitDataSize)
	buf := make([]byte, hash.Size+commitDataSize)
	if _, err := fi.r.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("commitgraph: %w: %v", ErrMalformedCommitGraph, err)
	}

	treeID, err := gitstore.FromBytes(buf[:hash.Size])
	if err != nil {
		return nil, err
	}
	p := buf[hash.Size:]
	parent1 := binary.BigEndian.Uint32(p[0:4])
	parent2 := binary.BigEndian.Uint32(p[4:8])
	genAndTime := binary.BigEndian.Uint64(p[8:16])

	var parents []uint32
	switch {
	case parent2&parentOctopusUsed == parentOctopusUsed:
		parents = []uint32{parent1 & parentOctopusMask}
		extra, err := fi.readExtraEdges(parent2 & parentOctopusMask)
		if err != nil {
			return nil, err
		}
		parents = append(parents, extra...)
	case parent2 != parentNone:
		parents = []uint32{parent1 & parentOctopusMask, parent2 & parentOctopusMask}
	case parent1 != parentNone:
		parents = []uint32{parent1 & parentOctopusMask}
	}

	return &CommitData{
		TreeID:        treeID,
		ParentIndexes: parents,
		Generation:    genAndTime >> 34,
		When:          time.Unix(int64(genAndTime&generationTimeMask), 0),
	}, nil
}

func (fi *FileIndex) readExtraEdges(start uint32) ([]uint32, error) {
	base, ok := fi.offsets[chunkExtraEdgeList]
	if !ok {
		return nil, fmt.Errorf("commitgraph: %w: octopus parent without extra-edge chunk", ErrMalformedCommitGraph)
	}
	var out []uint32
	buf := make([]byte, 4)
	off := base + int64(start)*4
	for {
		if _, err := fi.r.ReadAt(buf, off); err != nil {
			return nil, fmt.Errorf("commitgraph: %w: %v", ErrMalformedCommitGraph, err)
		}
		v := binary.BigEndian.Uint32(buf)
		out = append(out, v&parentOctopusMask)
		if v&parentOctopusLast == parentOctopusLast {
			return out, nil
		}
		off += 4
	}
}
