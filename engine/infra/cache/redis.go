package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/compozy/statusstream/pkg/config"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

const (
	defaultPingTimeout = 10 * time.Second
	pingBackoffBase    = 50 * time.Millisecond
	pingBackoffCap     = time.Second
)

// Redis is the external server used in distributed mode. The queue store,
// channel router and rate limiter all share its client.
type Redis struct {
	client    redis.UniversalClient
	log       logger.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewRedis connects to the configured server. The first ping is retried with
// backoff until cfg.PingTimeout so a server that is still starting up is
// tolerated.
func NewRedis(ctx context.Context, cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	log := logger.FromContext(ctx).With("component", "redis", "addr", opts.Addr, "db", opts.DB)
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	if err := waitForPing(ctx, client, timeout); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Info("Redis connection established", "pool_size", opts.PoolSize, "tls", opts.TLSConfig != nil)
	return &Redis{client: client, log: log}, nil
}

// clientOptions builds go-redis options from a URL or from host and port.
// Explicit pool, timeout and TLS settings apply on top of either form.
func clientOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
			Password: cfg.Password.Value(),
			DB:       cfg.DB,
		}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.TLSEnabled && opts.TLSConfig == nil {
		host, _, err := net.SplitHostPort(opts.Addr)
		if err != nil {
			host = cfg.Host
		}
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func waitForPing(ctx context.Context, client redis.UniversalClient, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	backoff := retry.WithCappedDuration(pingBackoffCap, retry.NewExponential(pingBackoffBase))
	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if last = client.Ping(ctx).Err(); last != nil {
			return retry.RetryableError(last)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if last != nil && errors.Is(err, context.DeadlineExceeded) {
		err = last
	}
	return fmt.Errorf("pinging Redis server (timeout=%s): %w", timeout, err)
}

func (r *Redis) Client() redis.UniversalClient { return r.client }

// HealthCheck pings the server.
func (r *Redis) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool. Later calls return the first result.
func (r *Redis) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.client.Close()
		if r.closeErr != nil {
			r.log.Error("Redis connection close failed", "error", r.closeErr)
			return
		}
		r.log.Debug("Redis connection closed")
	})
	return r.closeErr
}
