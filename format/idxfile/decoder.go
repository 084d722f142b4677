package idxfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/hash"
)

// Decoder reads a MemoryIndex from a ".idx" file stream.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads and validates a complete idx file, in either v1 or v2
// layout (spec.md §4.2).
func (d *Decoder) Decode() (*MemoryIndex, error) {
	buf, err := io.ReadAll(d.r)
	if err != nil {
		return nil, fmt.Errorf("idxfile: read: %w", err)
	}

	if len(buf) >= 4 && bytes.Equal(buf[:4], header) {
		return decodeV2(buf)
	}
	return decodeV1(buf)
}

func decodeFanout(buf []byte) (fanout [256]uint32, rest []byte, err error) {
	if len(buf) < fanoutSize*4 {
		return fanout, nil, fmt.Errorf("idxfile: %w: truncated fanout table", ErrInvalidIndex)
	}
	last := uint32(0)
	for i := 0; i < 256; i++ {
		v := binary.BigEndian.Uint32(buf[i*4 : i*4+4])
		if v < last {
			return fanout, nil, fmt.Errorf("idxfile: %w: non-monotone fanout", ErrInvalidIndex)
		}
		fanout[i] = v
		last = v
	}
	return fanout, buf[fanoutSize*4:], nil
}

func decodeV1(buf []byte) (*MemoryIndex, error) {
	fanout, rest, err := decodeFanout(buf)
	if err != nil {
		return nil, err
	}
	count := int(fanout[255])

	entrySize := hashSize + offset32Sz
	need := count*entrySize + trailerSize
	if len(rest) < need {
		return nil, fmt.Errorf("idxfile: %w: truncated v1 entry table", ErrInvalidIndex)
	}

	idx := &MemoryIndex{Version: 1, Fanout: fanout}
	idx.IDs = make([]gitstore.ObjectID, count)
	idx.CRC32 = make([]uint32, count) // v1 has no CRC32 table; left zero.
	idx.Offset32 = make([]uint32, count)

	for i := 0; i < count; i++ {
		off := binary.BigEndian.Uint32(rest[i*entrySize : i*entrySize+4])
		var id gitstore.ObjectID
		copy(id[:], rest[i*entrySize+4:i*entrySize+entrySize])
		idx.Offset32[i] = off
		idx.IDs[i] = id
	}

	trailer := rest[count*entrySize:]
	copy(idx.PackChecksum[:], trailer[:hashSize])
	copy(idx.IdxChecksum[:], trailer[hashSize:2*hashSize])

	return idx, nil
}

func decodeV2(buf []byte) (*MemoryIndex, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("idxfile: %w: short header", ErrInvalidIndex)
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version != VersionSupported {
		return nil, fmt.Errorf("idxfile: %w: version %d", gitstore.ErrUnsupportedVersion, version)
	}

	fanout, rest, err := decodeFanout(buf[8:])
	if err != nil {
		return nil, err
	}
	count := int(fanout[255])

	need := count*hashSize + count*crc32Size + count*offset32Sz + trailerSize
	if len(rest) < need {
		return nil, fmt.Errorf("idxfile: %w: truncated v2 tables", ErrInvalidIndex)
	}

	idx := &MemoryIndex{Version: 2, Fanout: fanout}
	idx.IDs = make([]gitstore.ObjectID, count)
	for i := 0; i < count; i++ {
		copy(idx.IDs[i][:], rest[i*hashSize:(i+1)*hashSize])
	}
	rest = rest[count*hashSize:]

	idx.CRC32 = make([]uint32, count)
	for i := 0; i < count; i++ {
		idx.CRC32[i] = binary.BigEndian.Uint32(rest[i*crc32Size : (i+1)*crc32Size])
	}
	rest = rest[count*crc32Size:]

	idx.Offset32 = make([]uint32, count)
	nLarge := 0
	for i := 0; i < count; i++ {
		v := binary.BigEndian.Uint32(rest[i*offset32Sz : (i+1)*offset32Sz])
		idx.Offset32[i] = v
		if v&0x80000000 != 0 {
			nLarge++
		}
	}
	rest = rest[count*offset32Sz:]

	if nLarge > 0 {
		needLarge := nLarge*offset64Sz + trailerSize
		if len(rest) < needLarge {
			return nil, fmt.Errorf("idxfile: %w: truncated 64-bit offset table", ErrInvalidIndex)
		}
		idx.Offset64 = make([]uint64, nLarge)
		for i := 0; i < nLarge; i++ {
			idx.Offset64[i] = binary.BigEndian.Uint64(rest[i*offset64Sz : (i+1)*offset64Sz])
		}
		rest = rest[nLarge*offset64Sz:]
	}

	if len(rest) != trailerSize {
		return nil, fmt.Errorf("idxfile: %w: unexpected trailing bytes", ErrInvalidIndex)
	}
	copy(idx.PackChecksum[:], rest[:hashSize])
	copy(idx.IdxChecksum[:], rest[hashSize:2*hashSize])

	if err := verifyTrailer(buf); err != nil {
		return nil, err
	}

	return idx, nil
}

// verifyTrailer checks spec.md §4.2's invariant: the SHA-1 of
// everything before the trailing 20 bytes equals the last 20 bytes.
func verifyTrailer(buf []byte) error {
	if len(buf) < hashSize {
		return fmt.Errorf("idxfile: %w: file too small to verify", ErrInvalidIndex)
	}
	body := buf[:len(buf)-hashSize]
	want := buf[len(buf)-hashSize:]

	h := hash.New()
	h.Write(body)
	got := h.Sum(nil)
	if !bytes.Equal(got, want) {
		return fmt.Errorf("idxfile: %w", gitstore.ErrTrailerMismatch)
	}
	return nil
}
