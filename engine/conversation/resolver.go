package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultOwnerCacheSize = 10_000
	defaultOwnerTTL       = 10 * time.Minute
)

// CachedResolver answers ownership lookups for the emitter and the
// authorization guard. Ownership never changes after creation, so positive
// lookups are cached; misses always reach the repository.
type CachedResolver struct {
	repo  Repository
	cache *ristretto.Cache[string, string]
	ttl   time.Duration
}

// NewCachedResolver builds a resolver caching up to size owners for ttl.
func NewCachedResolver(repo Repository, size int64, ttl time.Duration) (*CachedResolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("conversation repository is required")
	}
	if size <= 0 {
		size = defaultOwnerCacheSize
	}
	if ttl <= 0 {
		ttl = defaultOwnerTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create owner cache: %w", err)
	}
	return &CachedResolver{repo: repo, cache: cache, ttl: ttl}, nil
}

func (r *CachedResolver) Owner(ctx context.Context, conversationID string) (string, error) {
	if owner, ok := r.cache.Get(conversationID); ok {
		return owner, nil
	}
	owner, err := r.repo.Owner(ctx, conversationID)
	if err != nil {
		return "", err
	}
	r.cache.SetWithTTL(conversationID, owner, 1, r.ttl)
	return owner, nil
}

// Close releases the cache goroutines.
func (r *CachedResolver) Close() {
	r.cache.Close()
}
