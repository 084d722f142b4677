package objfile

import (
	"bufio"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/hash"
)

// Reader inflates a loose-object file and exposes its header and
// body as a stream.
type Reader struct {
	zr     io.ReadCloser
	r      io.Reader // zr, tee'd into h via io.TeeReader
	h      hash.Hash
	kind   gitstore.Kind
	size   int64
	header bool
}

// NewReader opens the zlib stream on src. Call Header before reading
// the body.
func NewReader(src io.Reader) (*Reader, error) {
	zr, err := zlib.NewReader(bufio.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("objfile: %w", err)
	}

	r := &Reader{zr: zr, h: hash.New()}
	r.r = io.TeeReader(zr, r.h)
	return r, nil
}

// Header reads and parses "<kind> <size>\0", validating the kind.
func (r *Reader) Header() (gitstore.Kind, int64, error) {
	if r.header {
		return r.kind, r.size, nil
	}

	kindBuf := make([]byte, 0, 8)
	b := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r.r, b); err != nil {
			return 0, 0, fmt.Errorf("objfile: %w: %v", ErrMalformedHeader, err)
		}
		if b[0] == ' ' {
			break
		}
		kindBuf = append(kindBuf, b[0])
		if len(kindBuf) > 6 {
			return 0, 0, ErrMalformedHeader
		}
	}

	sizeBuf := make([]byte, 0, 20)
	for {
		if _, err := io.ReadFull(r.r, b); err != nil {
			return 0, 0, fmt.Errorf("objfile: %w: %v", ErrMalformedHeader, err)
		}
		if b[0] == 0 {
			break
		}
		sizeBuf = append(sizeBuf, b[0])
		if len(sizeBuf) > 20 {
			return 0, 0, ErrMalformedHeader
		}
	}

	kind, err := kindFromString(string(kindBuf))
	if err != nil {
		return 0, 0, err
	}
	size, err := strconv.ParseInt(string(sizeBuf), 10, 64)
	if err != nil || size < 0 {
		return 0, 0, fmt.Errorf("objfile: %w: bad size", ErrMalformedHeader)
	}

	r.kind, r.size, r.header = kind, size, true
	return kind, size, nil
}

func kindFromString(s string) (gitstore.Kind, error) {
	switch s {
	case "commit":
		return gitstore.CommitKind, nil
	case "tree":
		return gitstore.TreeKind, nil
	case "blob":
		return gitstore.BlobKind, nil
	case "tag":
		return gitstore.TagKind, nil
	default:
		return gitstore.InvalidKind, fmt.Errorf("objfile: %w: unknown type %q", ErrMalformedHeader, s)
	}
}

// Read streams the object body; Header must be called first.
func (r *Reader) Read(p []byte) (int, error) {
	if !r.header {
		if _, _, err := r.Header(); err != nil {
			return 0, err
		}
	}
	return r.r.Read(p)
}

// Hash returns the object id computed over everything read so far.
// Call after draining the body for a final, stable id.
func (r *Reader) Hash() gitstore.ObjectID {
	var id gitstore.ObjectID
	copy(id[:], r.h.Sum(nil))
	return id
}

// Close releases the underlying zlib reader.
func (r *Reader) Close() error {
	return r.zr.Close()
}
