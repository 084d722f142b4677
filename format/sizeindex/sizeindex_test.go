package sizeindex

import (
	"bytes"
	"testing"

	"github.com/go-git/gitstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterIndexRoundTrip(t *testing.T) {
	w := &Writer{}
	w.Add(1, 4096)
	w.Add(5, 8_000_000_000) // forces the i64 overflow bucket
	w.Add(1<<24+2, 2048)    // forces the 32-bit position bucket

	idx, err := w.Index()
	require.NoError(t, err)

	size, ok := idx.SizeAtPosition(1)
	require.True(t, ok)
	assert.EqualValues(t, 4096, size)

	size, ok = idx.SizeAtPosition(5)
	require.True(t, ok)
	assert.EqualValues(t, 8_000_000_000, size)

	size, ok = idx.SizeAtPosition(1<<24 + 2)
	require.True(t, ok)
	assert.EqualValues(t, 2048, size)

	_, ok = idx.SizeAtPosition(99)
	assert.False(t, ok)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	w := &Writer{}
	w.Add(0, 10)
	w.Add(3, 20)
	w.Add(1<<24+1, 4_294_967_296) // > maxInt32, forces sizes64

	idx, err := w.Index()
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = NewEncoder(&buf).Encode(idx)
	require.NoError(t, err)

	got, err := NewDecoder(bytes.NewReader(buf.Bytes())).Decode()
	require.NoError(t, err)

	size, ok := got.SizeAtPosition(1<<24 + 1)
	require.True(t, ok)
	assert.EqualValues(t, 4_294_967_296, size)

	size, ok = got.SizeAtPosition(3)
	require.True(t, ok)
	assert.EqualValues(t, 20, size)
}

func TestDecodeDetectsTrailerMismatch(t *testing.T) {
	w := &Writer{}
	w.Add(0, 10)
	idx, err := w.Index()
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = NewEncoder(&buf).Encode(idx)
	require.NoError(t, err)

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xff

	_, err = NewDecoder(bytes.NewReader(corrupted)).Decode()
	assert.ErrorIs(t, err, gitstore.ErrTrailerMismatch)
}

func TestDecodeDetectsBadMagic(t *testing.T) {
	w := &Writer{}
	w.Add(0, 10)
	idx, err := w.Index()
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = NewEncoder(&buf).Encode(idx)
	require.NoError(t, err)

	corrupted := buf.Bytes()
	corrupted[0] ^= 0xff

	_, err = NewDecoder(bytes.NewReader(corrupted)).Decode()
	assert.ErrorIs(t, err, ErrInvalidSizeIndex)
}
