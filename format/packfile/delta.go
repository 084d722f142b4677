package packfile

import (
	"fmt"
)

// applyDelta reconstructs a target object from a base object and a
// delta instruction stream, grounded on plumbing/format/packfile's
// patch_delta.go in the teacher.
func applyDelta(base, delta []byte) ([]byte, error) {
	srcSize, delta, err := decodeDeltaSize(delta)
	if err != nil {
		return nil, err
	}
	if int64(len(base)) != srcSize {
		return nil, fmt.Errorf("packfile: %w: delta src size mismatch", ErrMalformedPack)
	}

	dstSize, delta, err := decodeDeltaSize(delta)
	if err != nil {
		return nil, err
	}

	dst := make([]byte, 0, dstSize)

	for len(delta) > 0 {
		cmd := delta[0]
		delta = delta[1:]

		if cmd&0x80 != 0 {
			var offset, size int64
			if cmd&0x01 != 0 {
				offset = int64(delta[0])
				delta = delta[1:]
			}
			if cmd&0x02 != 0 {
				offset |= int64(delta[0]) << 8
				delta = delta[1:]
			}
			if cmd&0x04 != 0 {
				offset |= int64(delta[0]) << 16
				delta = delta[1:]
			}
			if cmd&0x08 != 0 {
				offset |= int64(delta[0]) << 24
				delta = delta[1:]
			}
			if cmd&0x10 != 0 {
				size = int64(delta[0])
				delta = delta[1:]
			}
			if cmd&0x20 != 0 {
				size |= int64(delta[0]) << 8
				delta = delta[1:]
			}
			if cmd&0x40 != 0 {
				size |= int64(delta[0]) << 16
				delta = delta[1:]
			}
			if size == 0 {
				size = 0x10000
			}

			if offset < 0 || size < 0 || offset+size > int64(len(base)) {
				return nil, fmt.Errorf("packfile: %w: delta copy out of range", ErrMalformedPack)
			}
			dst = append(dst, base[offset:offset+size]...)

		} else if cmd != 0 {
			n := int(cmd)
			if n > len(delta) {
				return nil, fmt.Errorf("packfile: %w: delta insert overruns stream", ErrMalformedPack)
			}
			dst = append(dst, delta[:n]...)
			delta = delta[n:]

		} else {
			return nil, fmt.Errorf("packfile: %w: delta opcode 0", ErrMalformedPack)
		}
	}

	if int64(len(dst)) != dstSize {
		return nil, fmt.Errorf("packfile: %w: delta produced %d bytes, want %d", ErrMalformedPack, len(dst), dstSize)
	}
	return dst, nil
}

// decodeDeltaSize reads a LEB128 size varint (7 bits per byte, MSB
// continues) from the front of buf and returns the remainder.
func decodeDeltaSize(buf []byte) (int64, []byte, error) {
	if len(buf) == 0 {
		return 0, nil, fmt.Errorf("packfile: %w: truncated delta size", ErrMalformedPack)
	}

	var size int64
	shift := uint(0)
	for {
		if len(buf) == 0 {
			return 0, nil, fmt.Errorf("packfile: %w: truncated delta size", ErrMalformedPack)
		}
		b := buf[0]
		buf = buf[1:]
		size |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	return size, buf, nil
}

// encodeDeltaSize appends a LEB128 varint encoding of n to buf.
func encodeDeltaSize(buf []byte, n int64) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n > 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if n == 0 {
			break
		}
	}
	return buf
}

// buildInsertDelta builds a trivial delta stream that reconstructs dst
// purely from insert instructions (runs of at most 0x7f literal bytes),
// never copying from the base. The Encoder writes no delta entries at
// all; this helper lets tests build insert-only deltas directly.
func buildInsertDelta(srcSize, dstSize int64, literal []byte) []byte {
	out := encodeDeltaSize(nil, srcSize)
	out = encodeDeltaSize(out, dstSize)
	for len(literal) > 0 {
		n := len(literal)
		if n > 0x7f {
			n = 0x7f
		}
		out = append(out, byte(n))
		out = append(out, literal[:n]...)
		literal = literal[n:]
	}
	return out
}
