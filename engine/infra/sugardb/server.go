// Package sugardb runs an embedded SugarDB instance as the channel broker
// for single-process deployments.
package sugardb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/compozy/statusstream/pkg/logger"
	sdk "github.com/echovault/sugardb/sugardb"
)

const healthKeyPrefix = "statusstream:health:"

// Broker owns the embedded database behind Provider.
type Broker struct {
	db        *sdk.SugarDB
	dataDir   string
	probes    atomic.Uint64
	closeOnce sync.Once
}

// NewEmbedded starts SugarDB persisting under dataDir, or under the OS temp
// dir when dataDir is empty.
func NewEmbedded(ctx context.Context, dataDir string) (*Broker, error) {
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "statusstream-sugardb")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sugardb data dir: %w", err)
	}
	conf := sdk.DefaultConfig()
	conf.DataDir = dataDir
	db, err := sdk.NewSugarDB(sdk.WithConfig(conf), sdk.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("sugardb init failed: %w", err)
	}
	logger.FromContext(ctx).Info("Embedded SugarDB broker started", "data_dir", dataDir)
	return &Broker{db: db, dataDir: dataDir}, nil
}

func (b *Broker) DB() *sdk.SugarDB { return b.db }

// HealthCheck round-trips a probe key. Each call uses its own key so
// concurrent probes do not race on the value.
func (b *Broker) HealthCheck(_ context.Context) error {
	key := fmt.Sprintf("%s%d", healthKeyPrefix, b.probes.Add(1))
	if _, _, err := b.db.Set(key, "ok", sdk.SETOptions{}); err != nil {
		return fmt.Errorf("sugardb health write: %w", err)
	}
	defer func() { _, _ = b.db.Del(key) }()
	got, err := b.db.Get(key)
	if err != nil {
		return fmt.Errorf("sugardb health read: %w", err)
	}
	if got != "ok" {
		return fmt.Errorf("sugardb health value mismatch: %q", got)
	}
	return nil
}

// Close shuts the embedded instance down. It is safe to call more than once.
func (b *Broker) Close() {
	b.closeOnce.Do(b.db.ShutDown)
}
