package revindex

import (
	"bytes"
	"testing"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/format/idxfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T, s string) gitstore.ObjectID {
	t.Helper()
	id, err := gitstore.FromHex(s)
	require.NoError(t, err)
	return id
}

func buildFwd(t *testing.T) idxfile.Index {
	t.Helper()
	w := &idxfile.Writer{}
	w.Add(mustID(t, "cccc00000000000000000000000000000000000a"), 300, 1)
	w.Add(mustID(t, "aaaa00000000000000000000000000000000000a"), 100, 2)
	w.Add(mustID(t, "bbbb00000000000000000000000000000000000a"), 200, 3)
	w.SetChecksum(mustID(t, "1111111111111111111111111111111111111111"))
	idx, err := w.Index()
	require.NoError(t, err)
	return idx
}

func TestBuildFromIndexOrdersByOffset(t *testing.T) {
	fwd := buildFwd(t)
	rev, err := BuildFromIndex(fwd)
	require.NoError(t, err)

	id, err := rev.FindObjectID(100)
	require.NoError(t, err)
	assert.Equal(t, mustID(t, "aaaa00000000000000000000000000000000000a"), id)

	next, err := rev.FindNextOffset(100, 9999)
	require.NoError(t, err)
	assert.EqualValues(t, 200, next)

	next, err = rev.FindNextOffset(300, 9999)
	require.NoError(t, err)
	assert.EqualValues(t, 9999, next)
}

func TestFindObjectIDNotFound(t *testing.T) {
	fwd := buildFwd(t)
	rev, err := BuildFromIndex(fwd)
	require.NoError(t, err)

	_, err = rev.FindObjectID(42)
	assert.ErrorIs(t, err, gitstore.ErrObjectNotFound)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fwd := buildFwd(t)
	rev, err := BuildFromIndex(fwd)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = NewEncoder(&buf).Encode(rev, fwd)
	require.NoError(t, err)

	got, err := NewDecoder(bytes.NewReader(buf.Bytes()), fwd).Decode()
	require.NoError(t, err)

	id, err := got.FindObjectID(200)
	require.NoError(t, err)
	assert.Equal(t, mustID(t, "bbbb00000000000000000000000000000000000a"), id)

	next, err := got.FindNextOffset(200, 9999)
	require.NoError(t, err)
	assert.EqualValues(t, 300, next)
}

func TestDecodeDetectsBadMagic(t *testing.T) {
	fwd := buildFwd(t)
	rev, err := BuildFromIndex(fwd)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = NewEncoder(&buf).Encode(rev, fwd)
	require.NoError(t, err)

	corrupted := buf.Bytes()
	corrupted[0] ^= 0xff

	_, err = NewDecoder(bytes.NewReader(corrupted), fwd).Decode()
	assert.ErrorIs(t, err, ErrInvalidReverseIndex)
}

func TestDecodeDetectsTrailerMismatch(t *testing.T) {
	fwd := buildFwd(t)
	rev, err := BuildFromIndex(fwd)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = NewEncoder(&buf).Encode(rev, fwd)
	require.NoError(t, err)

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xff

	_, err = NewDecoder(bytes.NewReader(corrupted), fwd).Decode()
	assert.ErrorIs(t, err, gitstore.ErrTrailerMismatch)
}
