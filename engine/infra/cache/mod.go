package cache

import (
	"context"
	"fmt"

	"github.com/compozy/statusstream/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Cache bundles the Redis client shared by the queue store, the channel
// router and the distributed rate limiter.
type Cache struct {
	Client   redis.UniversalClient
	Embedded *MiniredisEmbedded
	external *Redis
}

// SetupCache connects to external Redis in distributed mode and starts an
// embedded server in standalone mode.
func SetupCache(ctx context.Context, cfg *config.Config) (*Cache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cache config cannot be nil")
	}
	if config.NormalizeMode(cfg.Mode) == config.ModeDistributed {
		r, err := NewRedis(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &Cache{Client: r.Client(), external: r}, nil
	}
	mr, err := NewMiniredisEmbedded(ctx)
	if err != nil {
		return nil, err
	}
	return &Cache{Client: mr.Client(), Embedded: mr}, nil
}

// HealthCheck pings the active backend.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}
	return nil
}

// Close gracefully shuts down the cache
func (c *Cache) Close(ctx context.Context) error {
	if c.external != nil {
		if err := c.external.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}
	if c.Embedded != nil {
		if err := c.Embedded.Close(ctx); err != nil {
			return fmt.Errorf("failed to close embedded Redis: %w", err)
		}
	}
	return nil
}
