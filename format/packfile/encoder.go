package packfile

import (
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/hash"
)

// Encoder writes a pack file. It only ever emits non-delta entries:
// generating a delta-compressed pack requires a similarity search
// over the candidate object set that is out of scope here (see
// DESIGN.md); every object this package writes round-trips through
// Pack.Load as a plain commit/tree/blob/tag record, which is what
// odb.ObjectInserter and PackWriter need for "stage loose objects,
// then fold them into a pack" (spec.md §4.7).
type Encoder struct {
	raw io.Writer
	h   hash.Hash
	w   io.Writer // raw tee'd into h
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{raw: w, h: hash.New()}
	e.w = io.MultiWriter(w, hashOnly{e.h})
	return e
}

type hashOnly struct{ h hash.Hash }

func (h hashOnly) Write(p []byte) (int, error) { return h.h.Write(p) }

// Entry describes one object as placed by EncodeWithEntries, enough
// to populate an idx/rev side by side with the pack itself.
type Entry struct {
	ID     gitstore.ObjectID
	Offset int64
	CRC32  uint32
}

// countingWriter tracks the number of bytes written through it so the
// encoder can report each object's starting offset.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Encode writes objects in the given order and returns the pack's
// trailing checksum.
func (e *Encoder) Encode(objects []gitstore.Object) (gitstore.ObjectID, error) {
	_, sum, err := e.EncodeWithEntries(objects)
	return sum, err
}

// EncodeWithEntries is Encode, additionally reporting each object's
// pack offset and CRC32 so a caller can build the accompanying .idx
// and .rev without a second pass over the pack bytes (spec.md §4.8
// "streaming pack writer").
func (e *Encoder) EncodeWithEntries(objects []gitstore.Object) ([]Entry, gitstore.ObjectID, error) {
	cw := &countingWriter{w: e.w}

	var hdr [12]byte
	copy(hdr[:4], Signature)
	binary.BigEndian.PutUint32(hdr[4:8], VersionSupported)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(objects)))
	if _, err := cw.Write(hdr[:]); err != nil {
		return nil, gitstore.ZeroID, err
	}

	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		offset := cw.n
		crc, err := e.writeObject(cw, obj)
		if err != nil {
			return nil, gitstore.ZeroID, err
		}
		entries = append(entries, Entry{ID: obj.ID(), Offset: offset, CRC32: crc})
	}

	var sum gitstore.ObjectID
	copy(sum[:], e.h.Sum(nil))
	if _, err := e.raw.Write(sum[:]); err != nil {
		return nil, gitstore.ZeroID, err
	}
	return entries, sum, nil
}

func (e *Encoder) writeObject(cw *countingWriter, obj gitstore.Object) (uint32, error) {
	typ, err := obj.Kind().PackType()
	if err != nil {
		return 0, err
	}

	r, err := obj.Reader()
	if err != nil {
		return 0, err
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	crc := crc32.NewIEEE()
	w := io.MultiWriter(cw, crc)

	if _, err := w.Write(writeObjectHeaderByte(typ, int64(len(content)))); err != nil {
		return 0, err
	}

	zw := zlib.NewWriter(w)
	if _, err := zw.Write(content); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}

	if int64(len(content)) != obj.Size() {
		return 0, fmt.Errorf("packfile: object %s declared size %d, read %d", obj.ID(), obj.Size(), len(content))
	}
	return crc.Sum32(), nil
}
