package config

import (
	"context"
	"strings"
)

// App operation modes. Standalone runs an embedded Redis and in-memory limiter
// stores; distributed expects an external Redis shared by every replica.
const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

// Channel broker backends. The sugardb broker is embedded and only valid in
// standalone mode.
const (
	BrokerRedis   = "redis"
	BrokerSugarDB = "sugardb"
)

// Conversation store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// NormalizeMode trims spaces and lowercases the provided mode string
func NormalizeMode(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsStandalone returns true if the configuration in ctx runs in standalone mode.
func IsStandalone(ctx context.Context) bool {
	cfg := FromContext(ctx)
	return cfg != nil && NormalizeMode(cfg.Mode) == ModeStandalone
}
