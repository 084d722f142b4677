package revindex

import (
	"encoding/binary"
	"io"

	"github.com/go-git/gitstore/format/idxfile"
	"github.com/go-git/gitstore/hash"
)

// stateFnEncode is one step of the encode state machine, grounded on
// plumbing/format/revfile's writeHeader/writeVersion/... chain in the
// teacher.
type stateFnEncode func(*Encoder) (stateFnEncode, int64, error)

// Encoder writes a MemoryIndex out in the on-disk ".rev" v1 layout.
type Encoder struct {
	w   io.Writer
	h   hash.Hash
	out io.Writer // w tee'd into h

	positions    []uint32
	packChecksum [hashSize]byte
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	h := hash.New()
	return &Encoder{w: w, h: h, out: io.MultiWriter(w, h)}
}

// Encode writes rev, resolved against fwd to recover each entry's
// idx-position, and returns the number of bytes written.
func (e *Encoder) Encode(rev *MemoryIndex, fwd idxfile.Index) (int64, error) {
	positions, err := rev.Positions(fwd)
	if err != nil {
		return 0, err
	}
	e.positions = positions
	pc := fwd.PackfileChecksum()
	copy(e.packChecksum[:], pc[:])

	var n int64
	for state := writeMagic; state != nil; {
		var written int64
		state, written, err = state(e)
		n += written
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func writeMagic(e *Encoder) (stateFnEncode, int64, error) {
	if _, err := e.out.Write(magic); err != nil {
		return nil, 0, err
	}
	return writeVersion, int64(len(magic)), nil
}

func writeVersion(e *Encoder) (stateFnEncode, int64, error) {
	if err := e.writeUint32(VersionSupported); err != nil {
		return nil, 0, err
	}
	return writeHashFunction, 4, nil
}

func writeHashFunction(e *Encoder) (stateFnEncode, int64, error) {
	if err := e.writeUint32(hashIDSHA1); err != nil {
		return nil, 0, err
	}
	return writeEntries, 4, nil
}

func writeEntries(e *Encoder) (stateFnEncode, int64, error) {
	var n int64
	for _, p := range e.positions {
		if err := e.writeUint32(p); err != nil {
			return nil, n, err
		}
		n += 4
	}
	return writePackChecksum, n, nil
}

func writePackChecksum(e *Encoder) (stateFnEncode, int64, error) {
	if _, err := e.out.Write(e.packChecksum[:]); err != nil {
		return nil, 0, err
	}
	return writeRevChecksum, int64(len(e.packChecksum)), nil
}

func writeRevChecksum(e *Encoder) (stateFnEncode, int64, error) {
	sum := e.h.Sum(nil)
	if _, err := e.w.Write(sum); err != nil {
		return nil, 0, err
	}
	return nil, int64(len(sum)), nil
}

func (e *Encoder) writeUint32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := e.out.Write(b[:])
	return err
}
