package objfile

import (
	"compress/zlib"
	"fmt"
	"io"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/hash"
)

// Writer produces a loose-object file: WriteHeader once, then Write
// the body, then Close to flush the zlib stream and finalize the
// hash.
type Writer struct {
	raw io.Writer
	zw  io.WriteCloser
	h   hash.Hash
	w   io.Writer // zw, tee'd into h

	size    int64
	written int64
	closed  bool
}

// NewWriter returns a Writer that deflates onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{raw: w, h: hash.New()}
}

// WriteHeader writes "<kind> <size>\0" and must be called exactly
// once, before any call to Write.
func (w *Writer) WriteHeader(kind gitstore.Kind, size int64) error {
	if !kind.Valid() {
		return fmt.Errorf("objfile: invalid object kind %v", kind)
	}
	if size < 0 {
		return ErrNegativeSize
	}

	w.size = size
	header := fmt.Sprintf("%s %d\x00", kind, size)

	w.h.Write([]byte(header))
	w.zw = zlib.NewWriter(w.raw)
	w.w = io.MultiWriter(w.zw, hashOnly{w.h})

	_, err := w.zw.Write([]byte(header))
	return err
}

// hashOnly adapts a hash.Hash so io.MultiWriter never double-writes
// it into the zlib stream.
type hashOnly struct{ h hash.Hash }

func (h hashOnly) Write(p []byte) (int, error) { return h.h.Write(p) }

// Write streams body bytes. Writing more than the size declared to
// WriteHeader returns ErrOverflow with the bytes actually accepted.
func (w *Writer) Write(p []byte) (int, error) {
	overflow := w.written+int64(len(p)) > w.size
	if overflow {
		p = p[:w.size-w.written]
	}

	n, err := w.w.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, err
	}
	if overflow {
		return n, ErrOverflow
	}
	return n, nil
}

// Hash returns the object id accumulated so far. Valid any time
// after WriteHeader; stable once every body byte has been written.
func (w *Writer) Hash() gitstore.ObjectID {
	var id gitstore.ObjectID
	copy(id[:], w.h.Sum(nil))
	return id
}

// Close flushes the zlib stream.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.zw == nil {
		return nil
	}
	return w.zw.Close()
}
