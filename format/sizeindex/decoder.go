package sizeindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/hash"
)

// Decoder reads and decodes a size-index file from an input stream.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode parses the stream into a MemoryIndex.
func (d *Decoder) Decode() (*MemoryIndex, error) {
	buf, err := io.ReadAll(d.r)
	if err != nil {
		return nil, err
	}
	if len(buf) < len(magic)+4+2+4+4+4+hash.Size {
		return nil, fmt.Errorf("sizeindex: %w: truncated header", ErrInvalidSizeIndex)
	}
	if !bytes.Equal(buf[:len(magic)], magic) {
		return nil, fmt.Errorf("sizeindex: %w: bad magic", ErrInvalidSizeIndex)
	}
	p := len(magic)

	version := binary.BigEndian.Uint32(buf[p:])
	p += 4
	if version != VersionSupported {
		return nil, fmt.Errorf("sizeindex: %w: unsupported version %d", gitstore.ErrUnsupportedVersion, version)
	}

	posScheme, sizeScheme := buf[p], buf[p+1]
	p += 2
	if posScheme != schemeSplit || sizeScheme != schemeSplit {
		return nil, fmt.Errorf("sizeindex: %w: unrecognized bucket encoding", gitstore.ErrUnsupportedSizeIndex)
	}

	count24 := binary.BigEndian.Uint32(buf[p:])
	p += 4
	count32 := binary.BigEndian.Uint32(buf[p:])
	p += 4
	count64 := binary.BigEndian.Uint32(buf[p:])
	p += 4

	need := p + int(count24)*pos24Size + int(count32)*pos32Size +
		(int(count24)+int(count32))*size32Size + int(count64)*size64Size + hash.Size
	if len(buf) != need {
		return nil, fmt.Errorf("sizeindex: %w: size mismatch (want %d bytes, have %d)", ErrInvalidSizeIndex, need, len(buf))
	}

	idx := &MemoryIndex{}

	idx.pos24 = make([]uint32, count24)
	for i := range idx.pos24 {
		b := buf[p : p+3]
		idx.pos24[i] = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
		p += 3
	}

	idx.pos32 = make([]uint32, count32)
	for i := range idx.pos32 {
		idx.pos32[i] = binary.BigEndian.Uint32(buf[p:])
		p += 4
	}

	idx.sizes32 = make([]int32, count24+count32)
	for i := range idx.sizes32 {
		idx.sizes32[i] = int32(binary.BigEndian.Uint32(buf[p:]))
		p += 4
	}

	idx.sizes64 = make([]int64, count64)
	for i := range idx.sizes64 {
		idx.sizes64[i] = int64(binary.BigEndian.Uint64(buf[p:]))
		p += 8
	}

	if err := verifyTrailer(buf); err != nil {
		return nil, err
	}

	return idx, nil
}

func verifyTrailer(buf []byte) error {
	body, trailer := buf[:len(buf)-hash.Size], buf[len(buf)-hash.Size:]
	h := hash.New()
	h.Write(body)
	sum := h.Sum(nil)
	if !bytes.Equal(sum, trailer) {
		return fmt.Errorf("sizeindex: %w", gitstore.ErrTrailerMismatch)
	}
	return nil
}
