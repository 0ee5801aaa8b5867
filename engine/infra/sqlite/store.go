package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/compozy/statusstream/pkg/logger"
)

const (
	memoryPath         = ":memory:"
	defaultBusyTimeout = 5 * time.Second
	defaultMaxOpen     = 10
	defaultPingTimeout = 3 * time.Second
)

// Store wraps the *sql.DB opened through the modernc driver.
type Store struct {
	db     *sql.DB
	path   string
	memory bool
}

// NewStore opens the database described by cfg and verifies the connection.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sqlite: config is required")
	}
	dsn, memory, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	applyPoolSettings(db, cfg, memory)
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := applyBusyTimeout(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}
	logger.FromContext(ctx).With(
		"store_driver", "sqlite",
		"path", cfg.Path,
		"in_memory", memory,
	).Info("Store initialized")
	return &Store{db: db, path: cfg.Path, memory: memory}, nil
}

// DB exposes the underlying handle for repositories in this package.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database location.
func (s *Store) Path() string { return s.path }

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check failed: %w", err)
	}
	return nil
}

// Migrate applies the embedded migrations on the open handle.
func (s *Store) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Close releases the connection pool.
func (s *Store) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	logger.FromContext(ctx).Info("SQLite store closed")
	return nil
}

// buildDSN renders the modernc DSN with the pragmas every connection needs.
// The boolean reports whether the database lives in memory.
func buildDSN(cfg *Config) (string, bool, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", false, fmt.Errorf("sqlite: path is required")
	}
	if path == memoryPath {
		return "file::memory:?cache=shared&_pragma=foreign_keys(ON)", true, nil
	}
	pragmas := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(ON)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeout(cfg).Milliseconds()),
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&"), false, nil
}

func busyTimeout(cfg *Config) time.Duration {
	if cfg.BusyTimeout > 0 {
		return cfg.BusyTimeout
	}
	return defaultBusyTimeout
}

func applyBusyTimeout(ctx context.Context, db *sql.DB, cfg *Config) error {
	stmt := fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout(cfg).Milliseconds())
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	return nil
}

func applyPoolSettings(db *sql.DB, cfg *Config, memory bool) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpen
	}
	if memory {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}
