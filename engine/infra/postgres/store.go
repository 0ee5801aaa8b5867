package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/compozy/statusstream/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns           = 20
	defaultHealthCheckPeriod  = 30 * time.Second
	defaultConnectTimeout     = 5 * time.Second
	defaultPingTimeout        = 3 * time.Second
	defaultHealthCheckTimeout = 1 * time.Second
)

// Store owns the pgx pool backing the conversation repository.
type Store struct {
	pool               *pgxpool.Pool
	stats              *poolStats
	healthCheckTimeout time.Duration
}

// NewStore builds the pool from cfg and pings it before returning.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres: config is required")
	}
	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, orDefault(cfg.PingTimeout, defaultPingTimeout))
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	stats, err := observePool(pool, poolLabel(cfg))
	if err != nil {
		logger.FromContext(ctx).Warn("Postgres pool metrics not registered", "error", err)
	}
	logger.FromContext(ctx).With(
		"store_driver", "postgres",
		"host", cfg.Host,
		"db_name", cfg.DBName,
		"max_conns", poolCfg.MaxConns,
		"min_conns", poolCfg.MinConns,
	).Info("Store initialized")
	return &Store{
		pool:               pool,
		stats:              stats,
		healthCheckTimeout: orDefault(cfg.HealthCheckTimeout, defaultHealthCheckTimeout),
	}, nil
}

// Pool exposes the pool to repositories in this package.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// HealthCheck pings the pool with a bounded timeout.
func (s *Store) HealthCheck(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, s.healthCheckTimeout)
	defer cancel()
	if err := s.pool.Ping(hctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close(ctx context.Context) error {
	s.stats.unregister()
	s.pool.Close()
	logger.FromContext(ctx).Info("Postgres store closed")
	return nil
}

func buildPoolConfig(cfg *Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	poolCfg.MaxConns, poolCfg.MinConns = connectionBounds(cfg)
	poolCfg.HealthCheckPeriod = orDefault(cfg.HealthCheckPeriod, defaultHealthCheckPeriod)
	poolCfg.ConnConfig.ConnectTimeout = orDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	return poolCfg, nil
}

// connectionBounds clamps the configured pool sizes into int32 with
// min never exceeding max.
func connectionBounds(cfg *Config) (int32, int32) {
	maxConns := int32(defaultMaxConns)
	if cfg.MaxOpenConns > 0 {
		maxConns = int32(min(cfg.MaxOpenConns, math.MaxInt32))
	}
	var minConns int32
	if cfg.MaxIdleConns > 0 {
		minConns = int32(min(cfg.MaxIdleConns, int(maxConns)))
	}
	return maxConns, minConns
}

func orDefault(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
