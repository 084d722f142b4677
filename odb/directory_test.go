package odb

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/gitstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extSuffix(ext gitstore.PackExt) string {
	for suf, e := range dotSuffixToExt {
		if e == ext {
			return suf
		}
	}
	return ""
}

func newTestDirectory(t *testing.T, cfg Config) *Directory {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("objects/pack", 0o755))
	d, err := NewDirectory(fs, "", cfg)
	require.NoError(t, err)
	return d
}

func TestInsertLooseRoundTrip(t *testing.T) {
	d := newTestDirectory(t, DefaultConfig())
	ins := NewObjectInserter(d)

	id, err := ins.InsertLoose(gitstore.BlobKind, []byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", id.String())

	ctx := context.Background()
	ok, err := d.Has(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	obj, err := d.Open(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, gitstore.BlobKind, obj.Kind())
	assert.Equal(t, []byte("hello\n"), obj.Bytes())
}

func TestOpenMissingObjectIsNilNotError(t *testing.T) {
	d := newTestDirectory(t, DefaultConfig())
	ctx := context.Background()

	missing := gitstore.NewObjectID(gitstore.BlobKind, []byte("never inserted"))
	obj, err := d.Open(ctx, missing)
	require.NoError(t, err)
	assert.Nil(t, obj)

	ok, err := d.Has(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPackWriterRoundTrip(t *testing.T) {
	d := newTestDirectory(t, DefaultConfig())

	blob := gitstore.NewMemoryObject(gitstore.BlobKind, []byte("aaaaaab"))
	tree := gitstore.NewMemoryObject(gitstore.TreeKind, []byte("irrelevant tree body"))

	pw := NewObjectInserter(d).NewPackWriter()
	pw.Add(blob)
	pw.Add(tree)

	desc, err := pw.Write()
	require.NoError(t, err)
	assert.True(t, desc.Has(gitstore.PackExtPack))
	assert.True(t, desc.Has(gitstore.PackExtIndex))

	ctx := context.Background()
	ok, err := d.Has(ctx, blob.ID())
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := d.Open(ctx, tree.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("irrelevant tree body"), got.Bytes())
}

func TestIsNotLargerThanUsesSizeIndexWithoutInflating(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBytesForObjectSizeIndex = 100
	d := newTestDirectory(t, cfg)

	big := make([]byte, 200)
	for i := range big {
		big[i] = byte(i)
	}
	obj := gitstore.NewMemoryObject(gitstore.BlobKind, big)

	pw := NewObjectInserter(d).NewPackWriter()
	pw.Add(obj)
	desc, err := pw.Write()
	require.NoError(t, err)
	require.True(t, desc.Has(gitstore.PackExtObjectSizeIndex), "200-byte object at a 100-byte threshold should be size-indexed")

	ctx := context.Background()
	notLarger, err := d.IsNotLargerThan(ctx, obj.ID(), 50)
	require.NoError(t, err)
	assert.False(t, notLarger)

	notLarger, err = d.IsNotLargerThan(ctx, obj.ID(), 250)
	require.NoError(t, err)
	assert.True(t, notLarger)
}

func TestIsNotLargerThanFallsBackBelowThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBytesForObjectSizeIndex = 1000 // smaller objects never get indexed
	d := newTestDirectory(t, cfg)

	obj := gitstore.NewMemoryObject(gitstore.BlobKind, []byte("small"))
	pw := NewObjectInserter(d).NewPackWriter()
	pw.Add(obj)
	desc, err := pw.Write()
	require.NoError(t, err)
	assert.False(t, desc.Has(gitstore.PackExtObjectSizeIndex))

	ctx := context.Background()
	notLarger, err := d.IsNotLargerThan(ctx, obj.ID(), 50)
	require.NoError(t, err)
	assert.True(t, notLarger)
}

func TestShallowCommitsParsesAndRejectsCorruption(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("objects/pack", 0o755))
	d, err := NewDirectory(fs, "", DefaultConfig())
	require.NoError(t, err)

	f, err := fs.Create("shallow")
	require.NoError(t, err)
	_, err = f.Write([]byte("# shallow roots\nd3148f9410b071edd4a4c85d2a43d1fa2574b0d2\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ids, err := d.ShallowCommits()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "d3148f9410b071edd4a4c85d2a43d1fa2574b0d2", ids[0].String())

	f, err = fs.Create("shallow")
	require.NoError(t, err)
	_, err = f.Write([]byte("X3148f9410b071edd4a4c85d2a43d1fa2574b0d2\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = d.ShallowCommits()
	assert.ErrorIs(t, err, gitstore.ErrCorruptShallowFile)
}

func TestCommitGraphCorruptionIsNotAnError(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("objects/info", 0o755))
	require.NoError(t, fs.MkdirAll("objects/pack", 0o755))

	f, err := fs.Create("objects/info/commit-graph")
	require.NoError(t, err)
	_, err = f.Write([]byte("garbage"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg := DefaultConfig()
	cfg.CommitGraph = true
	d, err := NewDirectory(fs, "", cfg)
	require.NoError(t, err)

	idx, ok := d.CommitGraph()
	assert.False(t, ok)
	assert.Nil(t, idx)
}

func TestCommitGraphDisabledByDefault(t *testing.T) {
	d := newTestDirectory(t, DefaultConfig())
	idx, ok := d.CommitGraph()
	assert.False(t, ok)
	assert.Nil(t, idx)
}

func TestOpenByPrefixUniqueAndTooShort(t *testing.T) {
	d := newTestDirectory(t, DefaultConfig())
	ins := NewObjectInserter(d)

	id, err := ins.InsertLoose(gitstore.BlobKind, []byte("hello\n"))
	require.NoError(t, err)

	ctx := context.Background()
	raw, err := hex.DecodeString(id.String()[:8])
	require.NoError(t, err)
	prefix := gitstore.AbbrevID(raw)

	got, err := d.OpenByPrefix(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = d.OpenByPrefix(ctx, prefix[:2])
	assert.Error(t, err)
}

func TestPreservedPacksExcludedFromLookup(t *testing.T) {
	d := newTestDirectory(t, DefaultConfig())
	fs := d.fs

	obj := gitstore.NewMemoryObject(gitstore.BlobKind, []byte("preserved only"))
	pw := NewObjectInserter(d).NewPackWriter()
	pw.Add(obj)
	desc, err := pw.Write()
	require.NoError(t, err)

	require.NoError(t, fs.MkdirAll("objects/pack/preserved", 0o755))
	for ext := range desc.Extensions {
		suf := extSuffix(ext)
		src := d.fs.Join("objects/pack", "pack-"+desc.ID.String()+suf)
		dst := d.fs.Join("objects/pack/preserved", "pack-"+desc.ID.String()+".old-"+suf[1:])
		in, err := fs.Open(src)
		require.NoError(t, err)
		b := make([]byte, 1<<20)
		n, _ := in.Read(b)
		in.Close()
		out, err := fs.Create(dst)
		require.NoError(t, err)
		_, err = out.Write(b[:n])
		require.NoError(t, err)
		require.NoError(t, out.Close())
		require.NoError(t, fs.Remove(src))
	}

	require.NoError(t, d.rescanPacks())

	preserved := d.PreservedPacks()
	require.Len(t, preserved, 1)
	assert.True(t, preserved[0].Preserved)

	ctx := context.Background()
	ok, err := d.Has(ctx, obj.ID())
	require.NoError(t, err)
	assert.False(t, ok, "preserved packs must never answer a normal lookup")
}
