package packfile

import (
	"bufio"
	"compress/zlib"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/format/idxfile"
	"github.com/go-git/gitstore/format/revindex"
	"github.com/go-git/gitstore/hash"
)

// Pack is a random-access reader over a single pack file, keyed by
// its forward index for id→offset lookups and (optionally) its
// reverse index for offset→id and CRC32-span resolution (spec.md
// §4.5 open_pack/Pack.get/Pack.load).
type Pack struct {
	ra  io.ReaderAt
	sz  int64
	idx idxfile.Index
	rev revindex.Index // nil disables CRC32 verification

	maxDepth int
}

// Open validates the pack header and trailer shape (not the trailer
// hash itself; call VerifyTrailer for that) and returns a Pack ready
// for point lookups.
func Open(ra io.ReaderAt, size int64, idx idxfile.Index, rev revindex.Index) (*Pack, error) {
	if size < 12+hash.Size {
		return nil, fmt.Errorf("packfile: %w: too short", ErrMalformedPack)
	}

	var hdr [12]byte
	if _, err := ra.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
	}
	if string(hdr[:4]) != string(Signature) {
		return nil, fmt.Errorf("packfile: %w: bad signature", ErrMalformedPack)
	}
	version := beUint32(hdr[4:8])
	if version != VersionSupported {
		return nil, fmt.Errorf("packfile: %w: version %d", gitstore.ErrUnsupportedVersion, version)
	}

	return &Pack{ra: ra, sz: size, idx: idx, rev: rev, maxDepth: DefaultMaxDeltaDepth}, nil
}

// SetMaxDeltaDepth overrides DefaultMaxDeltaDepth.
func (p *Pack) SetMaxDeltaDepth(n int) {
	if n > 0 {
		p.maxDepth = n
	}
}

// Header decodes the 12-byte pack header.
func (p *Pack) Header() (Header, error) {
	var hdr [12]byte
	if _, err := p.ra.ReadAt(hdr[:], 0); err != nil {
		return Header{}, fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
	}
	return Header{Version: beUint32(hdr[4:8]), ObjectsQty: beUint32(hdr[8:12])}, nil
}

// VerifyTrailer recomputes the SHA-1 over every byte but the last 20
// and compares it to the trailing checksum (spec.md §4.5 "Integrity").
func (p *Pack) VerifyTrailer() error {
	h := hash.New()
	sr := io.NewSectionReader(p.ra, 0, p.sz-hash.Size)
	if _, err := io.Copy(h, sr); err != nil {
		return fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
	}

	var want [hash.Size]byte
	if _, err := p.ra.ReadAt(want[:], p.sz-hash.Size); err != nil {
		return fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
	}
	var got [hash.Size]byte
	copy(got[:], h.Sum(nil))
	if got != want {
		return gitstore.ErrTrailerMismatch
	}
	return nil
}

// Get looks up oid in the forward index and loads it, applying any
// delta chain. It returns gitstore.ErrObjectNotFound if oid is absent.
func (p *Pack) Get(oid gitstore.ObjectID) (gitstore.Object, error) {
	offset, err := p.idx.FindOffset(oid)
	if err != nil {
		return nil, err
	}
	return p.Load(offset)
}

// Load materializes the object at offset, resolving any delta chain
// to a fully inflated MemoryObject (spec.md §4.5 Pack.load).
func (p *Pack) Load(offset int64) (*gitstore.MemoryObject, error) {
	content, kind, err := p.resolve(offset, make(map[int64]bool), 0)
	if err != nil {
		return nil, err
	}
	return gitstore.NewMemoryObject(kind, content), nil
}

// resolve walks the delta chain starting at offset, returning the
// fully reconstructed content and its final kind. visited guards
// against cycles (spec.md §4.5 "On cycle detection ... CorruptPack").
func (p *Pack) resolve(offset int64, visited map[int64]bool, depth int) ([]byte, gitstore.Kind, error) {
	if visited[offset] {
		return nil, 0, gitstore.ErrDeltaCycle
	}
	if depth > p.maxDepth {
		return nil, 0, gitstore.ErrDeltaChainTooDeep
	}
	visited[offset] = true

	hdr, content, err := p.readRecord(offset)
	if err != nil {
		return nil, 0, err
	}

	switch hdr.Kind {
	case gitstore.CommitKind, gitstore.TreeKind, gitstore.BlobKind, gitstore.TagKind:
		return content, hdr.Kind, nil

	case gitstore.OffsetDeltaKind:
		base, kind, err := p.resolve(hdr.OffsetReference, visited, depth+1)
		if err != nil {
			return nil, 0, err
		}
		out, err := applyDelta(base, content)
		if err != nil {
			return nil, 0, err
		}
		return out, kind, nil

	case gitstore.ReferenceDeltaKind:
		if p.idx == nil {
			return nil, 0, fmt.Errorf("packfile: %w: ref-delta without an index", ErrMalformedPack)
		}
		baseOffset, err := p.idx.FindOffset(hdr.Reference)
		if err != nil {
			return nil, 0, err
		}
		base, kind, err := p.resolve(baseOffset, visited, depth+1)
		if err != nil {
			return nil, 0, err
		}
		out, err := applyDelta(base, content)
		if err != nil {
			return nil, 0, err
		}
		return out, kind, nil

	default:
		return nil, 0, fmt.Errorf("packfile: %w: unexpected kind %v", ErrMalformedPack, hdr.Kind)
	}
}

// readRecord decodes the header at offset and inflates its content.
func (p *Pack) readRecord(offset int64) (*ObjectHeader, []byte, error) {
	if offset < 12 || offset >= p.sz-hash.Size {
		return nil, nil, fmt.Errorf("packfile: %w: offset %d out of range", ErrMalformedPack, offset)
	}

	sr := io.NewSectionReader(p.ra, offset, p.sz-offset)
	br := bufio.NewReader(sr)

	hdr, _, err := readObjectHeader(br, offset)
	if err != nil {
		return nil, nil, err
	}

	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
	}
	defer zr.Close()

	content, err := io.ReadAll(zr)
	if err != nil {
		return nil, nil, fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
	}
	if int64(len(content)) != hdr.Size {
		return nil, nil, fmt.Errorf("packfile: %w: declared size %d, got %d", ErrMalformedPack, hdr.Size, len(content))
	}

	return hdr, content, nil
}

// VerifyObjectCRC32 recomputes the CRC32 of the on-disk record (header
// through compressed body, matching idx's convention) bounded by the
// reverse index's next-offset, and compares it to the idx-stored
// value. Requires a reverse index (spec.md §4.5 "per-object CRC32 ...
// opt-in").
func (p *Pack) VerifyObjectCRC32(offset int64, id gitstore.ObjectID) error {
	if p.rev == nil {
		return fmt.Errorf("packfile: CRC32 verification requires a reverse index")
	}
	next, err := p.rev.FindNextOffset(offset, p.sz-hash.Size)
	if err != nil {
		return err
	}

	want, err := p.idx.FindCRC32(id)
	if err != nil {
		return err
	}

	sr := io.NewSectionReader(p.ra, offset, next-offset)
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, sr); err != nil {
		return fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
	}
	if h.Sum32() != want {
		return fmt.Errorf("packfile: %w: crc32 mismatch for %s", gitstore.ErrCorruptObject, id)
	}
	return nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
