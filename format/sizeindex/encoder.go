package sizeindex

import (
	"encoding/binary"
	"io"

	"github.com/go-git/gitstore/hash"
)

// Encoder writes a MemoryIndex to an output stream.
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

	if err := e.write(magic); err != nil {
		return n, err
	}
	n += int64(len(magic))

	if err := e.writeUint32(VersionSupported); err != nil {
		return n, err
	}
	n += 4

	if err := e.write([]byte{schemeSplit, schemeSplit}); err != nil {
		return n, err
	}
	n += 2

	if err := e.writeUint32(uint32(len(idx.pos24))); err != nil {
		return n, err
	}
	n += 4
	if err := e.writeUint32(uint32(len(idx.pos32))); err != nil {
		return n, err
	}
	n += 4
	if err := e.writeUint32(uint32(len(idx.sizes64))); err != nil {
		return n, err
	}
	n += 4

	for _, p := range idx.pos24 {
		var b [3]byte
		b[0] = byte(p >> 16)
		b[1] = byte(p >> 8)
		b[2] = byte(p)
		if err := e.write(b[:]); err != nil {
			return n, err
		}
		n += 3
	}

	for _, p := range idx.pos32 {
		if err := e.writeUint32(p); err != nil {
			return n, err
		}
		n += 4
	}

	for _, s := range idx.sizes32 {
		if err := e.writeUint32(uint32(s)); err != nil {
			return n, err
		}
		n += 4
	}

	for _, s := range idx.sizes64 {
		if err := e.writeUint64(uint64(s)); err != nil {
			return n, err
		}
		n += 8
	}

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
