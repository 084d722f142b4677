package packfile

import (
	"bufio"
	"fmt"

	"github.com/go-git/gitstore"
)

// readObjectHeader decodes one object header at the reader's current
// position, grounded on scanner.go's objectEntry/readObjectTypeAndLength.
// offset is the object's absolute pack offset, used to resolve
// OffsetReference for ofs-delta entries.
func readObjectHeader(r *bufio.Reader, offset int64) (*ObjectHeader, int64, error) {
	var consumed int64

	b, err := r.ReadByte()
	if err != nil {
		return nil, 0, fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
	}
	consumed++

	typ := (b >> 4) & 0x07
	size := int64(b & 0x0f)
	shift := uint(4)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return nil, 0, fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
		}
		consumed++
		size |= int64(b&0x7f) << shift
		shift += 7
	}

	kind, err := gitstore.KindFromPackType(typ)
	if err != nil {
		return nil, 0, err
	}

	h := &ObjectHeader{Offset: offset, Kind: kind, Size: size}

	switch kind {
	case gitstore.OffsetDeltaKind:
		distance, n, err := readOffsetDelta(r)
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		if distance <= 0 || distance > offset {
			return nil, 0, fmt.Errorf("packfile: %w: ofs-delta distance out of range", ErrMalformedPack)
		}
		h.OffsetReference = offset - distance

	case gitstore.ReferenceDeltaKind:
		var id gitstore.ObjectID
		n, err := readFull(r, id[:])
		if err != nil {
			return nil, 0, fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
		}
		consumed += n
		h.Reference = id
	}

	h.ContentOffset = offset + consumed
	return h, consumed, nil
}

// readOffsetDelta decodes the big-endian-chunked, continuation-biased
// varint used by ofs-delta (spec.md §4.5): each byte contributes 7
// bits, MSB means "more bytes follow", and every continued byte adds
// an implicit +1 before the next shift (writeOffsetDelta below mirrors
// this).
func readOffsetDelta(r *bufio.Reader) (int64, int64, error) {
	var consumed int64

	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
	}
	consumed++

	value := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("packfile: %w: %v", ErrMalformedPack, err)
		}
		consumed++
		value = ((value + 1) << 7) | int64(b&0x7f)
	}
	return value, consumed, nil
}

func readFull(r *bufio.Reader, buf []byte) (int64, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return int64(n), err
		}
	}
	return int64(n), nil
}

// writeOffsetDelta encodes distance using the same continuation-biased
// scheme readOffsetDelta decodes. Mirrors encoder.go in the teacher's
// packfile package.
func writeOffsetDelta(distance int64) []byte {
	if distance <= 0 {
		panic("packfile: non-positive ofs-delta distance")
	}

	// Peel off 7-bit groups least-significant-first, then reverse,
	// undoing the "+1 before shift" bias the decoder applies.
	var groups []byte
	groups = append(groups, byte(distance&0x7f))
	distance >>= 7
	for distance > 0 {
		distance--
		groups = append(groups, byte(distance&0x7f))
		distance >>= 7
	}

	result := make([]byte, len(groups))
	for i := range groups {
		result[i] = groups[len(groups)-1-i]
		if i != len(groups)-1 {
			result[i] |= 0x80
		}
	}
	return result
}

// writeObjectHeaderByte encodes the first header byte plus the
// continued size bytes (type+size varint), common to every object
// kind.
func writeObjectHeaderByte(typ byte, size int64) []byte {
	first := (typ << 4) & 0x70
	b := byte(size & 0x0f)
	size >>= 4
	out := []byte{}
	more := size > 0
	if more {
		b |= 0x80
	}
	out = append(out, first|b)
	for size > 0 {
		b = byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
