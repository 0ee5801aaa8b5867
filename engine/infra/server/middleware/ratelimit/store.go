package ratelimit

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const memoryCleanupInterval = 30 * time.Second

// newStore returns a Redis-backed store when client is set and an in-process
// store otherwise. The Redis store shares counters across replicas.
func newStore(cfg *Config, client redis.UniversalClient) (limiter.Store, error) {
	opts := limiter.StoreOptions{
		Prefix:          cfg.Prefix,
		MaxRetry:        cfg.MaxRetry,
		CleanUpInterval: memoryCleanupInterval,
	}
	if client == nil {
		return memory.NewStoreWithOptions(opts), nil
	}
	store, err := sredis.NewStoreWithOptions(client, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
	}
	return store, nil
}
