package revindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/format/idxfile"
	"github.com/go-git/gitstore/hash"
)

// stateFn is one step of the decode state machine, grounded on
// plumbing/format/revfile's readMagicNumber/readVersion/... chain in
// the teacher.
type stateFn func(*Decoder) (stateFn, error)

// Decoder reads a ".rev" file, resolving its idx-position table
// against a companion forward Index to produce a ready-to-query
// MemoryIndex.
type Decoder struct {
	r   *bufio.Reader
	fwd idxfile.Index
	h   hash.Hash

	count     int64
	positions []uint32
}

// NewDecoder returns a Decoder reading from r. fwd is the pack's
// forward (.idx) index, used to translate idx-positions back into
// (ObjectID, offset) pairs and to cross-check the pack checksum.
func NewDecoder(r io.Reader, fwd idxfile.Index) *Decoder {
	return &Decoder{r: bufio.NewReader(r), fwd: fwd}
}

// Decode parses the stream and returns the resolved reverse index.
func (d *Decoder) Decode() (*MemoryIndex, error) {
	count, err := d.fwd.Count()
	if err != nil {
		return nil, err
	}
	d.count = count
	d.h = hash.New()

	for state := readMagic; state != nil; {
		if state, err = state(d); err != nil {
			return nil, err
		}
	}

	return d.resolve()
}

func readMagic(d *Decoder) (stateFn, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, fmt.Errorf("revindex: %w: %v", ErrInvalidReverseIndex, err)
	}
	for i, b := range magic {
		if buf[i] != b {
			return nil, fmt.Errorf("revindex: %w: bad magic", ErrInvalidReverseIndex)
		}
	}
	d.h.Write(buf)
	return readVersion, nil
}

func readVersion(d *Decoder) (stateFn, error) {
	v, err := d.readUint32Hashed()
	if err != nil {
		return nil, err
	}
	if v != VersionSupported {
		return nil, fmt.Errorf("revindex: %w: unsupported version %d", gitstore.ErrUnsupportedVersion, v)
	}
	return readHashFunction, nil
}

func readHashFunction(d *Decoder) (stateFn, error) {
	hf, err := d.readUint32Hashed()
	if err != nil {
		return nil, err
	}
	if hf != hashIDSHA1 {
		return nil, fmt.Errorf("revindex: %w: unsupported hash function %d", ErrInvalidReverseIndex, hf)
	}
	return readEntries, nil
}

func readEntries(d *Decoder) (stateFn, error) {
	if d.count == 0 {
		return nil, fmt.Errorf("revindex: %w: empty index", ErrInvalidReverseIndex)
	}
	d.positions = make([]uint32, d.count)
	for i := int64(0); i < d.count; i++ {
		v, err := d.readUint32Hashed()
		if err != nil {
			return nil, err
		}
		d.positions[i] = v
	}
	return readPackChecksum, nil
}

func readPackChecksum(d *Decoder) (stateFn, error) {
	buf := make([]byte, hashSize)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, fmt.Errorf("revindex: %w: %v", ErrInvalidReverseIndex, err)
	}
	d.h.Write(buf)

	want := d.fwd.PackfileChecksum()
	got, err := gitstore.FromBytes(buf)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, fmt.Errorf("revindex: %w: pack checksum mismatch", gitstore.ErrTrailerMismatch)
	}
	return readRevChecksum, nil
}

func readRevChecksum(d *Decoder) (stateFn, error) {
	buf := make([]byte, hashSize)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, fmt.Errorf("revindex: %w: %v", ErrInvalidReverseIndex, err)
	}

	sum := d.h.Sum(nil)
	if string(sum) != string(buf) {
		return nil, fmt.Errorf("revindex: %w: trailer mismatch", gitstore.ErrTrailerMismatch)
	}

	if _, err := d.r.Peek(1); err == nil {
		return nil, fmt.Errorf("revindex: %w: trailing garbage", ErrInvalidReverseIndex)
	}
	return nil, nil
}

func (d *Decoder) readUint32Hashed() (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return 0, fmt.Errorf("revindex: %w: %v", ErrInvalidReverseIndex, err)
	}
	d.h.Write(buf)
	return binary.BigEndian.Uint32(buf), nil
}

// resolve translates the decoded idx-position table into parallel
// (offset, id) arrays ordered by ascending pack offset, the same
// shape BuildFromIndex produces directly from an in-memory index.
func (d *Decoder) resolve() (*MemoryIndex, error) {
	byPos := make([]idxfile.Entry, d.count)
	it, err := d.fwd.Entries()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var pos int64
	for {
		e, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if pos >= d.count {
			return nil, fmt.Errorf("revindex: %w: forward index has more entries than expected", ErrInvalidReverseIndex)
		}
		byPos[pos] = *e
		pos++
	}

	rev := &MemoryIndex{
		offsets: make([]int64, d.count),
		ids:     make([]gitstore.ObjectID, d.count),
	}
	for i, p := range d.positions {
		if int64(p) >= d.count {
			return nil, fmt.Errorf("revindex: %w: idx-position %d out of range", ErrInvalidReverseIndex, p)
		}
		e := byPos[p]
		rev.offsets[i] = e.Offset
		rev.ids[i] = e.ID
	}
	return rev, nil
}
