package cache

import "sync"

type entry struct {
	key  Key
	data []byte
	ref  bool // clock reference bit, set on access
}

// bucket is one stripe: an independently locked clock (second-chance)
// cache over a share of a table's byte budget. Coordination of
// concurrent misses happens one level up, in Table, via
// golang.org/x/sync/singleflight; bucket itself only ever stores
// ready values.
type bucket struct {
	mu sync.Mutex

	limit FileSize
	size  FileSize

	entries map[Key]*entry
	ring    []*entry
	hand    int
}

func newBucket(limit FileSize) *bucket {
	return &bucket{limit: limit, entries: make(map[Key]*entry)}
}

// get returns the cached block for key, setting its reference bit on
// a hit (spec.md §4.6 "Access sets the bit").
func (b *bucket) get(key Key) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	e.ref = true
	return e.data, true
}

// put inserts data for key, evicting via the clock hand until the
// bucket is back within budget. Reports how many entries it evicted.
func (b *bucket) put(key Key, data []byte) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.entries[key]; ok {
		b.size -= FileSize(len(old.data))
		old.data = data
		old.ref = true
		b.size += FileSize(len(data))
		return 0
	}

	e := &entry{key: key, data: data, ref: true}
	b.entries[key] = e
	b.ring = append(b.ring, e)
	b.size += FileSize(len(data))

	var evictions int64
	for b.size > b.limit && b.evictOne() {
		evictions++
	}
	return evictions
}

// evictOne sweeps the clock hand, clearing reference bits on hits and
// evicting the first entry found with a clear bit (spec.md §4.6
// "Eviction"). Reports whether it evicted anything.
func (b *bucket) evictOne() bool {
	for scanned, n := 0, len(b.ring); scanned < 2*n && n > 0; scanned++ {
		if b.hand >= len(b.ring) {
			b.hand = 0
		}
		if len(b.ring) == 0 {
			return false
		}
		e := b.ring[b.hand]

		if cur, ok := b.entries[e.key]; !ok || cur != e {
			b.ring = append(b.ring[:b.hand], b.ring[b.hand+1:]...)
			continue
		}

		if e.ref {
			e.ref = false
			b.hand++
			continue
		}

		b.ring = append(b.ring[:b.hand], b.ring[b.hand+1:]...)
		delete(b.entries, e.key)
		b.size -= FileSize(len(e.data))
		return true
	}
	return false
}

func (b *bucket) clear() {
	b.mu.Lock()
	b.entries = make(map[Key]*entry)
	b.ring = nil
	b.hand = 0
	b.size = 0
	b.mu.Unlock()
}
