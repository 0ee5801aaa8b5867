package sqlite

import (
	"time"

	"github.com/compozy/statusstream/pkg/config"
)

// Config holds the SQLite conversation store settings. Path ":memory:" keeps
// the database in process.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	BusyTimeout     time.Duration
}

// ConfigFrom maps the store section of the application configuration.
func ConfigFrom(store config.StoreConfig) *Config {
	return &Config{
		Path:         store.Path,
		MaxOpenConns: store.MaxOpenConns,
		BusyTimeout:  store.BusyTimeout,
	}
}
