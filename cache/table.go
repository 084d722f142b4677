package cache

import (
	"fmt"
	"hash/maphash"

	"golang.org/x/sync/singleflight"
)

var seed = maphash.MakeSeed()

// bucketIndex hashes key into [0, n).
func bucketIndex(key Key, n int) int {
	var h maphash.Hash
	h.SetSeed(seed)
	h.WriteString(string(key.Stream))
	var off [8]byte
	for i := range off {
		off[i] = byte(key.AlignedOffset >> (8 * i))
	}
	h.Write(off[:])
	return int(h.Sum64() & uint64(n-1))
}

// Table is a complete striped cache over one byte budget: the
// physical storage backing either a single PackExt partition or the
// default partition. Concurrent misses for the same key are
// coalesced with golang.org/x/sync/singleflight so only one of them
// runs the loader (spec.md §4.6 "Single-flight load").
type Table struct {
	buckets []*bucket
	n       int
	group   singleflight.Group
}

// NewTable allocates a Table with n buckets (rounded up to a power of
// two) sharing limit bytes evenly.
func NewTable(limit FileSize, n int) *Table {
	if n <= 0 {
		n = DefaultConcurrency
	}
	n = nextPowerOfTwo(n)

	per := limit / FileSize(n)
	t := &Table{n: n, buckets: make([]*bucket, n)}
	for i := range t.buckets {
		t.buckets[i] = newBucket(per)
	}
	return t
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Get returns the cached block for key.
func (t *Table) Get(key Key) ([]byte, bool) {
	return t.buckets[bucketIndex(key, t.n)].get(key)
}

// GetOrLoad returns the cached block for key, calling loader on a
// miss. Concurrent callers for the same key block on the same
// loader invocation rather than each running it (spec.md §4.6
// "get_or_load").
func (t *Table) GetOrLoad(key Key, loader func() ([]byte, error)) (data []byte, hit bool, evictions int64, err error) {
	b := t.buckets[bucketIndex(key, t.n)]

	if v, ok := b.get(key); ok {
		return v, true, 0, nil
	}

	sfKey := fmt.Sprintf("%s@%d", key.Stream, key.AlignedOffset)
	v, err, _ := t.group.Do(sfKey, func() (interface{}, error) {
		if v, ok := b.get(key); ok {
			return blockResult{data: v}, nil
		}
		data, err := loader()
		if err != nil {
			return nil, err
		}
		ev := b.put(key, data)
		return blockResult{data: data, evictions: ev}, nil
	})
	if err != nil {
		return nil, false, 0, err
	}

	res := v.(blockResult)
	return res.data, false, res.evictions, nil
}

type blockResult struct {
	data      []byte
	evictions int64
}

// Clear empties every bucket in the table.
func (t *Table) Clear() {
	for _, b := range t.buckets {
		b.clear()
	}
}
