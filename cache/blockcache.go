package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-git/gitstore"
)

// BlockCache is the top-level block cache (spec.md §4.6): a default
// Table plus any number of PackExt partitions, each with its own
// budget and striping, and per-PackExt observable statistics.
type BlockCache struct {
	blockSize int64

	def   *Table
	byExt map[gitstore.PackExt]*Table // only set for partitioned exts

	statsMu sync.Mutex
	stats   map[gitstore.PackExt]*atomicStats // keyed by the requested ext, partitioned or not
}

type atomicStats struct {
	currentSize int64
	hit         int64
	miss        int64
	evictions   int64
}

// NewBlockCache builds a BlockCache with the given total byte budget
// and concurrency (buckets per table), optionally carving out
// partitions per spec.md §4.6 "Pack-ext partitioning". Every ext named
// in partitions must appear at most once across all partitions.
func NewBlockCache(blockLimit FileSize, concurrency int, partitions []Partition) (*BlockCache, error) {
	if blockLimit <= 0 {
		blockLimit = DefaultBlockLimit
	}

	seen := make(map[gitstore.PackExt]bool)
	var reserved FileSize
	for _, p := range partitions {
		for _, ext := range p.Exts {
			if seen[ext] {
				return nil, fmt.Errorf("cache: pack extension %v bound to more than one partition", ext)
			}
			seen[ext] = true
		}
		reserved += p.Budget
	}
	if reserved > blockLimit {
		return nil, fmt.Errorf("cache: partition budgets (%d) exceed total budget (%d)", reserved, blockLimit)
	}

	c := &BlockCache{
		blockSize: int64(DefaultBlockSize),
		def:       NewTable(blockLimit-reserved, concurrency),
		byExt:     make(map[gitstore.PackExt]*Table),
		stats:     make(map[gitstore.PackExt]*atomicStats),
	}

	for _, p := range partitions {
		t := NewTable(p.Budget, concurrency)
		for _, ext := range p.Exts {
			c.byExt[ext] = t
		}
	}
	return c, nil
}

func (c *BlockCache) tableFor(ext gitstore.PackExt) *Table {
	if t, ok := c.byExt[ext]; ok {
		return t
	}
	return c.def
}

func (c *BlockCache) statsFor(ext gitstore.PackExt) *atomicStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s, ok := c.stats[ext]
	if !ok {
		s = &atomicStats{}
		c.stats[ext] = s
	}
	return s
}

// Get returns the cached block for (ext, stream, alignedOffset).
func (c *BlockCache) Get(ext gitstore.PackExt, stream StreamKey, alignedOffset int64) ([]byte, bool) {
	key := Key{Stream: stream, AlignedOffset: alignedOffset}
	data, ok := c.tableFor(ext).Get(key)

	st := c.statsFor(ext)
	if ok {
		atomic.AddInt64(&st.hit, 1)
	} else {
		atomic.AddInt64(&st.miss, 1)
	}
	return data, ok
}

// GetOrLoad returns the cached block, loading and caching it on a
// miss. offset is rounded down to BlockSize; loader must return
// exactly the bytes for that aligned block.
func (c *BlockCache) GetOrLoad(ext gitstore.PackExt, stream StreamKey, offset int64, loader func(alignedOffset int64) ([]byte, error)) ([]byte, error) {
	aligned := AlignOffset(offset, c.blockSize)
	key := Key{Stream: stream, AlignedOffset: aligned}

	st := c.statsFor(ext)

	data, hit, evictions, err := c.tableFor(ext).GetOrLoad(key, func() ([]byte, error) {
		return loader(aligned)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoaderFailed, err)
	}

	if hit {
		atomic.AddInt64(&st.hit, 1)
	} else {
		atomic.AddInt64(&st.miss, 1)
		atomic.AddInt64(&st.evictions, evictions)
		atomic.AddInt64(&st.currentSize, int64(len(data)))
	}
	return data, nil
}

// BlockSize is the fixed alignment/size every cached block uses.
func (c *BlockCache) BlockSize() int64 { return c.blockSize }

// Clear empties every table.
func (c *BlockCache) Clear() {
	c.def.Clear()
	seen := map[*Table]bool{c.def: true}
	for _, t := range c.byExt {
		if !seen[t] {
			t.Clear()
			seen[t] = true
		}
	}

	c.statsMu.Lock()
	c.stats = make(map[gitstore.PackExt]*atomicStats)
	c.statsMu.Unlock()
}

// Stats returns the observable counters for ext (spec.md §4.6
// "Observable statistics").
func (c *BlockCache) Stats(ext gitstore.PackExt) Stats {
	st := c.statsFor(ext)
	return Stats{
		CurrentSize: FileSize(atomic.LoadInt64(&st.currentSize)),
		HitCount:    atomic.LoadInt64(&st.hit),
		MissCount:   atomic.LoadInt64(&st.miss),
		Evictions:   atomic.LoadInt64(&st.evictions),
	}
}
