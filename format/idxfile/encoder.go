package idxfile

import (
	"encoding/binary"
	"io"

	"github.com/go-git/gitstore/hash"
)

// Encoder writes a MemoryIndex to an output stream in v2 layout. v1
// is read-only; nothing has written it in over a decade and spec.md
// §4.8 only requires the writer path to produce what "existing Git
// clients read" (spec.md §1 non-goal (b)), which is v2.
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
	var n int64

	if err := e.write(header); err != nil {
		return n, err
	}
	n += int64(len(header))

	if err := e.writeUint32(VersionSupported); err != nil {
		return n, err
	}
	n += 4

	for _, v := range idx.Fanout {
		if err := e.writeUint32(v); err != nil {
			return n, err
		}
		n += 4
	}

	for _, id := range idx.IDs {
		if err := e.write(id[:]); err != nil {
			return n, err
		}
		n += int64(len(id))
	}

	for _, c := range idx.CRC32 {
		if err := e.writeUint32(c); err != nil {
			return n, err
		}
		n += 4
	}

	for _, o := range idx.Offset32 {
		if err := e.writeUint32(o); err != nil {
			return n, err
		}
		n += 4
	}

	for _, o := range idx.Offset64 {
		if err := e.writeUint64(o); err != nil {
			return n, err
		}
		n += 8
	}

	if err := e.write(idx.PackChecksum[:]); err != nil {
		return n, err
	}
	n += int64(len(idx.PackChecksum))

	// The idx checksum covers everything written above (including the
	// pack checksum) but is itself written straight to raw, never
	// folded into its own sum.
	sum := e.h.Sum(nil)
	if _, err := e.raw.Write(sum); err != nil {
		return n, err
	}
	n += int64(len(sum))

	return n, nil
}

func (e *Encoder) write(b []byte) error {
	_, err := e.w.Write(b)
	return err
}

func (e *Encoder) writeUint32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return e.write(b[:])
}

func (e *Encoder) writeUint64(v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return e.write(b[:])
}
