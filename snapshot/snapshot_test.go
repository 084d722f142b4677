package snapshot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndEqual(t *testing.T) {
	fs := memfs.New()
	f, err := fs.Create("pack-1.idx")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s1 := Save(fs, "pack-1.idx", DefaultResolution)
	s2 := Save(fs, "pack-1.idx", DefaultResolution)
	assert.True(t, s1.Equal(s2))
}

func TestIsModifiedDetectsSizeChange(t *testing.T) {
	fs := memfs.New()
	f, err := fs.Create("pack-1.idx")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s := Save(fs, "pack-1.idx", DefaultResolution)

	f, err = fs.OpenFile("pack-1.idx", os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte(" world, a lot more bytes so size differs"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.True(t, s.IsModified(fs, "pack-1.idx"))
}

func TestIsModifiedMissingFileIsModified(t *testing.T) {
	fs := memfs.New()
	s := Save(fs, "does-not-exist", DefaultResolution)
	assert.True(t, s.IsModified(fs, "does-not-exist"))
}

// TestRacyCleanWindow exercises spec.md §8 invariant 8: a snapshot
// taken, then the file modified with an identical timestamp, must be
// reported modified until the filesystem timer has advanced past the
// racy window.
func TestRacyCleanWindow(t *testing.T) {
	fs := memfs.New()
	f, err := fs.Create("pack-1.idx")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// A snapshot whose lastModified equals "now" is always inside the
	// racy window relative to a lastRead taken moments later.
	s := Snapshot{
		lastModified: time.Now(),
		size:         0,
		lastRead:     time.Now(),
		resolution:   time.Millisecond,
	}
	assert.True(t, s.isModified(s.lastModified, 0, MissingFileKey))
}

func TestWaitUntilNotRacyRespectsContext(t *testing.T) {
	s := Snapshot{
		lastModified: time.Now().Add(time.Hour),
		resolution:   time.Second,
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	err := s.WaitUntilNotRacy(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFileKeyMissingNeverEqual(t *testing.T) {
	assert.False(t, MissingFileKey.Equal(MissingFileKey))
}
