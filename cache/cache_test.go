package cache

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-git/gitstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrLoadCachesResult(t *testing.T) {
	c, err := NewBlockCache(1*MiByte, 4, nil)
	require.NoError(t, err)

	var loads int64
	loader := func(off int64) ([]byte, error) {
		atomic.AddInt64(&loads, 1)
		return []byte("block-data"), nil
	}

	data, err := c.GetOrLoad(gitstore.PackExtPack, "pack-a", 0, loader)
	require.NoError(t, err)
	assert.Equal(t, "block-data", string(data))

	data, err = c.GetOrLoad(gitstore.PackExtPack, "pack-a", 0, loader)
	require.NoError(t, err)
	assert.Equal(t, "block-data", string(data))
	assert.EqualValues(t, 1, atomic.LoadInt64(&loads))

	st := c.Stats(gitstore.PackExtPack)
	assert.EqualValues(t, 1, st.HitCount)
	assert.EqualValues(t, 1, st.MissCount)
}

func TestGetOrLoadSingleFlight(t *testing.T) {
	c, err := NewBlockCache(1*MiByte, 1, nil)
	require.NoError(t, err)

	var loads int64
	var inFlight int64
	release := make(chan struct{})
	var wg sync.WaitGroup
	start := make(chan struct{})

	const n = 20
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.GetOrLoad(gitstore.PackExtPack, "pack-a", 4096, func(off int64) ([]byte, error) {
				atomic.AddInt64(&loads, 1)
				atomic.AddInt64(&inFlight, 1)
				<-release
				return []byte(fmt.Sprintf("data-%d", off)), nil
			})
			assert.NoError(t, err)
		}()
	}

	close(start)
	// give every goroutine a chance to reach the (at most one) live
	// loader call before letting it complete.
	for atomic.LoadInt64(&inFlight) == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&loads), "concurrent misses for the same key must share one loader call")
}

func TestGetOrLoadPropagatesLoaderError(t *testing.T) {
	c, err := NewBlockCache(1*MiByte, 1, nil)
	require.NoError(t, err)

	_, err = c.GetOrLoad(gitstore.PackExtPack, "pack-a", 0, func(off int64) ([]byte, error) {
		return nil, gitstore.ErrObjectNotFound
	})
	assert.ErrorIs(t, err, ErrLoaderFailed)
}

func TestEvictionUnderBudget(t *testing.T) {
	b := newBucket(2 * Byte)

	b.put(Key{Stream: "s", AlignedOffset: 0}, []byte("c"))
	b.put(Key{Stream: "s", AlignedOffset: 1}, []byte("d"))
	// now full with two 1-byte entries; inserting a 2-byte entry must
	// evict both previous entries (spec.md §4.6 "Eviction").
	b.put(Key{Stream: "s", AlignedOffset: 2}, []byte("ee"))

	_, ok := b.get(Key{Stream: "s", AlignedOffset: 0})
	assert.False(t, ok)
	_, ok = b.get(Key{Stream: "s", AlignedOffset: 1})
	assert.False(t, ok)
	v, ok := b.get(Key{Stream: "s", AlignedOffset: 2})
	assert.True(t, ok)
	assert.Equal(t, "ee", string(v))
}

func TestClockGivesTouchedEntrySecondChance(t *testing.T) {
	b := newBucket(100 * Byte)

	k0 := Key{Stream: "s", AlignedOffset: 0}
	k1 := Key{Stream: "s", AlignedOffset: 1}
	k2 := Key{Stream: "s", AlignedOffset: 2}
	b.put(k0, []byte("a"))
	b.put(k1, []byte("b"))
	b.put(k2, []byte("c"))

	// simulate a prior clock sweep having cleared every bit, then
	// touch k1 so only its bit is set again.
	b.entries[k0].ref = false
	b.entries[k1].ref = false
	b.entries[k2].ref = false
	b.get(k1)

	require.True(t, b.evictOne())

	_, ok := b.get(k1)
	assert.True(t, ok, "touched entry should survive the sweep that evicted an untouched one")
}

func TestPartitionRejectsDuplicateExt(t *testing.T) {
	_, err := NewBlockCache(1*MiByte, 4, []Partition{
		{Exts: []gitstore.PackExt{gitstore.PackExtIndex}, Budget: 512 * KiByte},
		{Exts: []gitstore.PackExt{gitstore.PackExtIndex}, Budget: 256 * KiByte},
	})
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	c, err := NewBlockCache(1*MiByte, 1, nil)
	require.NoError(t, err)

	_, err = c.GetOrLoad(gitstore.PackExtPack, "pack-a", 0, func(off int64) ([]byte, error) {
		return []byte("x"), nil
	})
	require.NoError(t, err)

	c.Clear()
	_, ok := c.Get(gitstore.PackExtPack, "pack-a", 0)
	assert.False(t, ok)
}
