package streamclient

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultDedupCapacity = 500

// dedupSet remembers recently seen event fingerprints. Once it grows past
// its capacity the oldest half is evicted in one sweep.
type dedupSet struct {
	capacity int
	seen     *lru.Cache[string, struct{}]
}

func newDedupSet(capacity int) (*dedupSet, error) {
	if capacity <= 0 {
		capacity = defaultDedupCapacity
	}
	cache, err := lru.New[string, struct{}](capacity + 1)
	if err != nil {
		return nil, fmt.Errorf("streamclient: create dedup cache: %w", err)
	}
	return &dedupSet{capacity: capacity, seen: cache}, nil
}

// Observe records key and reports whether it was already present.
// Contains does not touch recency, so eviction follows insertion order.
func (d *dedupSet) Observe(key string) bool {
	if d.seen.Contains(key) {
		return true
	}
	d.seen.Add(key, struct{}{})
	if d.seen.Len() > d.capacity {
		d.evictOldestHalf()
	}
	return false
}

func (d *dedupSet) evictOldestHalf() {
	for n := d.seen.Len() / 2; n > 0; n-- {
		if _, _, ok := d.seen.RemoveOldest(); !ok {
			return
		}
	}
}

func (d *dedupSet) Len() int {
	return d.seen.Len()
}

func (d *dedupSet) Reset() {
	d.seen.Purge()
}
