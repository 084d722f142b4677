package commitgraph

import (
	"bytes"
	"testing"
	"time"

	"github.com/go-git/gitstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readerAtCloser struct {
	*bytes.Reader
}

func (r readerAtCloser) Close() error { return nil }

func mustID(t *testing.T, s string) gitstore.ObjectID {
	t.Helper()
	id, err := gitstore.FromHex(s)
	require.NoError(t, err)
	return id
}

func TestMemoryIndexGenerations(t *testing.T) {
	when := time.Unix(1700000000, 0)
	root := mustID(t, "aaaa00000000000000000000000000000000000a")
	child := mustID(t, "bbbb00000000000000000000000000000000000a")
	tree := mustID(t, "cccc00000000000000000000000000000000000a")

	w := &Writer{}
	w.Add(root, tree, nil, when)
	w.Add(child, tree, []gitstore.ObjectID{root}, when)
	w.ComputeGenerations()

	idx := w.Build()
	rootPos, err := idx.IndexOf(root)
	require.NoError(t, err)
	rootData, err := idx.CommitDataAt(rootPos)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rootData.Generation)

	childPos, err := idx.IndexOf(child)
	require.NoError(t, err)
	childData, err := idx.CommitDataAt(childPos)
	require.NoError(t, err)
	assert.EqualValues(t, 2, childData.Generation)
	assert.Equal(t, []uint32{rootPos}, childData.ParentIndexes)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	when := time.Unix(1700000000, 0)
	root := mustID(t, "aaaa00000000000000000000000000000000000a")
	p1 := mustID(t, "bbbb00000000000000000000000000000000000a")
	p2 := mustID(t, "cccc00000000000000000000000000000000000a")
	p3 := mustID(t, "dddd00000000000000000000000000000000000a")
	merge := mustID(t, "eeee00000000000000000000000000000000000a")
	tree := mustID(t, "111100000000000000000000000000000000000a")

	w := &Writer{}
	w.Add(root, tree, nil, when)
	w.Add(p1, tree, []gitstore.ObjectID{root}, when)
	w.Add(p2, tree, []gitstore.ObjectID{root}, when)
	w.Add(p3, tree, []gitstore.ObjectID{root}, when)
	w.Add(merge, tree, []gitstore.ObjectID{p1, p2, p3}, when) // octopus merge
	w.ComputeGenerations()

	idx := w.Build()

	var buf bytes.Buffer
	_, err := NewEncoder(&buf).Encode(idx)
	require.NoError(t, err)

	got, err := OpenFileIndex(readerAtCloser{bytes.NewReader(buf.Bytes())}, int64(buf.Len()))
	require.NoError(t, err)
	defer got.Close()

	assert.EqualValues(t, 5, got.Len())

	mergePos, err := got.IndexOf(merge)
	require.NoError(t, err)
	mergeData, err := got.CommitDataAt(mergePos)
	require.NoError(t, err)
	require.Len(t, mergeData.ParentIndexes, 3)
	assert.EqualValues(t, 3, mergeData.Generation)

	p1Pos, err := got.IndexOf(p1)
	require.NoError(t, err)
	p2Pos, err := got.IndexOf(p2)
	require.NoError(t, err)
	p3Pos, err := got.IndexOf(p3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{p1Pos, p2Pos, p3Pos}, mergeData.ParentIndexes)

	id, err := got.IDAt(mergePos)
	require.NoError(t, err)
	assert.Equal(t, merge, id)
}

func TestIndexOfMissingCommit(t *testing.T) {
	w := &Writer{}
	w.Add(mustID(t, "aaaa00000000000000000000000000000000000a"), gitstore.ZeroID, nil, time.Unix(1, 0))
	w.ComputeGenerations()
	idx := w.Build()

	var buf bytes.Buffer
	_, err := NewEncoder(&buf).Encode(idx)
	require.NoError(t, err)

	got, err := OpenFileIndex(readerAtCloser{bytes.NewReader(buf.Bytes())}, int64(buf.Len()))
	require.NoError(t, err)
	defer got.Close()

	_, err = got.IndexOf(mustID(t, "ffff00000000000000000000000000000000000a"))
	assert.ErrorIs(t, err, gitstore.ErrObjectNotFound)
}
