package packfile

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"io"
	"testing"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/format/idxfile"
	"github.com/go-git/gitstore/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectHeaderVarintRoundTrip(t *testing.T) {
	for _, size := range []int64{0, 1, 15, 16, 127, 128, 4095, 1 << 20} {
		b := writeObjectHeaderByte(3, size) // blob
		hdr, n, err := readObjectHeader(bufio.NewReader(bytes.NewReader(b)), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(len(b)), n)
		assert.Equal(t, gitstore.BlobKind, hdr.Kind)
		assert.Equal(t, size, hdr.Size)
	}
}

func TestOffsetDeltaRoundTrip(t *testing.T) {
	for _, distance := range []int64{1, 127, 128, 200, 16384, 123456789} {
		b := writeOffsetDelta(distance)
		got, n, err := readOffsetDelta(bufio.NewReader(bytes.NewReader(b)))
		require.NoError(t, err)
		assert.Equal(t, int64(len(b)), n)
		assert.Equal(t, distance, got)
	}
}

func TestApplyDeltaInsertOnly(t *testing.T) {
	base := []byte("irrelevant")
	want := []byte("hello, delta world")
	delta := buildInsertDelta(int64(len(base)), int64(len(want)), want)

	got, err := applyDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestApplyDeltaCopyAndInsert(t *testing.T) {
	base := []byte("The quick brown fox jumps over the lazy dog")
	// src_size, dst_size, then: copy base[4:19] ("quick brown fox"),
	// insert " never ", copy base[35:39] ("lazy"), insert "!".
	var delta []byte
	delta = encodeDeltaSize(delta, int64(len(base)))
	delta = encodeDeltaSize(delta, int64(len("quick brown fox never lazy!")))
	delta = append(delta, 0x80|0x01|0x10, 4, 15) // copy offset=4(1 byte), size=15(1 byte)
	insert := []byte(" never ")
	delta = append(delta, byte(len(insert)))
	delta = append(delta, insert...)
	delta = append(delta, 0x80|0x01|0x10, 35, 4) // copy offset=35, size=4
	delta = append(delta, byte(len("!")))
	delta = append(delta, '!')

	got, err := applyDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, "quick brown fox never lazy!", string(got))
}

// buildPack assembles a minimal two-object pack (a blob and a
// ref-delta blob built against it) and returns its bytes, an index,
// and the two object ids.
func buildPack(t *testing.T) ([]byte, *idxfile.MemoryIndex, gitstore.ObjectID, gitstore.ObjectID) {
	t.Helper()

	base := []byte("package main\n\nfunc main() {}\n")
	baseID := gitstore.NewObjectID(gitstore.BlobKind, base)
	target := []byte("package main\n\nfunc main() { println(\"hi\") }\n")
	targetID := gitstore.NewObjectID(gitstore.BlobKind, target)

	var deltaStream []byte
	deltaStream = encodeDeltaSize(deltaStream, int64(len(base)))
	deltaStream = encodeDeltaSize(deltaStream, int64(len(target)))
	deltaStream = append(deltaStream, byte(len(target)))
	deltaStream = append(deltaStream, target...)

	var buf bytes.Buffer
	buf.Write(Signature)
	buf.Write([]byte{0, 0, 0, 2}) // version
	buf.Write([]byte{0, 0, 0, 2}) // object count

	var fanout [256]uint32
	var ids []gitstore.ObjectID
	var crcs []uint32
	var offsets []uint32

	writeEntry := func(kind gitstore.Kind, ref []byte, content []byte, size int64) int64 {
		off := int64(buf.Len())
		typ, err := kind.PackType()
		require.NoError(t, err)
		buf.Write(writeObjectHeaderByte(typ, size))
		if ref != nil {
			buf.Write(ref)
		}
		zw := zlib.NewWriter(&buf)
		_, err = zw.Write(content)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		return off
	}

	baseOff := writeEntry(gitstore.BlobKind, nil, base, int64(len(base)))
	ids = append(ids, baseID)
	offsets = append(offsets, uint32(baseOff))
	crcs = append(crcs, 0)

	deltaOff := writeEntry(gitstore.ReferenceDeltaKind, baseID[:], deltaStream, int64(len(deltaStream)))
	ids = append(ids, targetID)
	offsets = append(offsets, uint32(deltaOff))
	crcs = append(crcs, 0)

	// Sort by id to build a valid fanout/IDs table.
	type row struct {
		id     gitstore.ObjectID
		offset uint32
		crc    uint32
	}
	rows := []row{{ids[0], offsets[0], crcs[0]}, {ids[1], offsets[1], crcs[1]}}
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].id.Compare(rows[j-1].id) < 0; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
	sortedIDs := make([]gitstore.ObjectID, len(rows))
	sortedOffsets := make([]uint32, len(rows))
	sortedCRCs := make([]uint32, len(rows))
	for i, r := range rows {
		sortedIDs[i], sortedOffsets[i], sortedCRCs[i] = r.id, r.offset, r.crc
		for b := int(r.id[0]); b < 256; b++ {
			fanout[b]++
		}
	}

	h := hash.New()
	h.Write(buf.Bytes())
	var sum gitstore.ObjectID
	copy(sum[:], h.Sum(nil))
	buf.Write(sum[:])

	idx := &idxfile.MemoryIndex{
		Version:      idxfile.VersionSupported,
		Fanout:       fanout,
		IDs:          sortedIDs,
		CRC32:        sortedCRCs,
		Offset32:     sortedOffsets,
		PackChecksum: sum,
	}

	return buf.Bytes(), idx, baseID, targetID
}

func TestPackGetResolvesRefDelta(t *testing.T) {
	data, idx, baseID, targetID := buildPack(t)

	p, err := Open(bytes.NewReader(data), int64(len(data)), idx, nil)
	require.NoError(t, err)

	require.NoError(t, p.VerifyTrailer())

	base, err := p.Get(baseID)
	require.NoError(t, err)
	assert.Equal(t, gitstore.BlobKind, base.Kind())

	target, err := p.Get(targetID)
	require.NoError(t, err)
	assert.Equal(t, gitstore.BlobKind, target.Kind())
	assert.Equal(t, targetID, target.ID())

	r, err := target.Reader()
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(got), "println")
}

func TestPackGetMissingObject(t *testing.T) {
	data, idx, _, _ := buildPack(t)
	p, err := Open(bytes.NewReader(data), int64(len(data)), idx, nil)
	require.NoError(t, err)

	_, err = p.Get(gitstore.ObjectID{0xff})
	assert.ErrorIs(t, err, gitstore.ErrObjectNotFound)
}

func TestEncoderProducesReadablePack(t *testing.T) {
	objs := []gitstore.Object{
		gitstore.NewMemoryObject(gitstore.BlobKind, []byte("one")),
		gitstore.NewMemoryObject(gitstore.BlobKind, []byte("two")),
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	sum, err := enc.Encode(objs)
	require.NoError(t, err)
	assert.NotEqual(t, gitstore.ZeroID, sum)

	p, err := Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()), nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.VerifyTrailer())

	hdr, err := p.Header()
	require.NoError(t, err)
	assert.EqualValues(t, 2, hdr.ObjectsQty)
}
