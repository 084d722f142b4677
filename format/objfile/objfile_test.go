package objfile

import (
	"bytes"
	"io"
	"testing"

	"github.com/go-git/gitstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	content := []byte("package main\n\nfunc main() {}\n")

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(gitstore.BlobKind, int64(len(content))))
	n, err := w.Write(content)
	require.NoError(t, err)
	assert.Equal(t, len(content), n)
	require.NoError(t, w.Close())

	wantID := gitstore.NewObjectID(gitstore.BlobKind, content)
	assert.Equal(t, wantID, w.Hash())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	kind, size, err := r.Header()
	require.NoError(t, err)
	assert.Equal(t, gitstore.BlobKind, kind)
	assert.EqualValues(t, len(content), size)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, wantID, r.Hash())
	require.NoError(t, r.Close())
}

func TestWriteOverflow(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader(gitstore.BlobKind, 4))

	n, err := w.Write([]byte("1234"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = w.Write([]byte("56789"))
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, 0, n)
}

func TestWriteHeaderNegativeSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.ErrorIs(t, w.WriteHeader(gitstore.BlobKind, -1), ErrNegativeSize)
}

func TestWriteHeaderInvalidKind(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.Error(t, w.WriteHeader(gitstore.InvalidKind, 8))
}

func TestReadGarbage(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("not zlib data at all")))
	assert.Error(t, err)
}

func TestReadEmpty(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil))
	assert.Error(t, err)
}
