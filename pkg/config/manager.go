package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/compozy/statusstream/pkg/logger"
)

// Manager holds the active configuration and the sources it was built from.
type Manager struct {
	Service    Service
	current    atomic.Pointer[Config]
	sources    []Source
	reloadMu   sync.Mutex
	callbacks  []func(*Config)
	callbackMu sync.RWMutex
	watcher    *Watcher
	closeOnce  sync.Once
}

// NewManager creates a new configuration manager.
func NewManager(service Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{Service: service}
}

// Load loads configuration from sources and stores the result atomically.
func (m *Manager) Load(ctx context.Context, sources ...Source) (*Config, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	m.sources = append([]Source(nil), sources...)
	cfg, err := m.Service.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	m.current.Store(cfg)
	return cfg, nil
}

// Reload forces a configuration reload from all sources and notifies
// OnChange callbacks. A failed reload keeps the current configuration.
func (m *Manager) Reload(ctx context.Context) error {
	m.reloadMu.Lock()
	cfg, err := m.Service.Load(ctx, m.sources...)
	if err != nil {
		m.reloadMu.Unlock()
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	m.current.Store(cfg)
	m.reloadMu.Unlock()

	m.callbackMu.RLock()
	callbacks := append([]func(*Config){}, m.callbacks...)
	m.callbackMu.RUnlock()
	for _, callback := range callbacks {
		callback(cfg)
	}
	return nil
}

// OnChange registers a callback invoked with each reloaded configuration.
func (m *Manager) OnChange(callback func(*Config)) {
	if callback == nil {
		return
	}
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// Watch reloads the configuration whenever path changes.
func (m *Manager) Watch(ctx context.Context, path string) error {
	watcher, err := NewWatcher(defaultWatchDebounce)
	if err != nil {
		return err
	}
	watcher.OnChange(func() {
		if err := m.Reload(ctx); err != nil {
			logger.FromContext(ctx).Error("Failed to reload configuration", "path", path, "error", err)
			return
		}
		logger.FromContext(ctx).Info("Configuration reloaded", "path", path)
	})
	if err := watcher.Watch(ctx, path); err != nil {
		_ = watcher.Close()
		return err
	}
	m.reloadMu.Lock()
	previous := m.watcher
	m.watcher = watcher
	m.reloadMu.Unlock()
	if previous != nil {
		return previous.Close()
	}
	return nil
}

// Get returns the active configuration, or nil before the first Load.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Close releases every source held by the manager.
func (m *Manager) Close(_ context.Context) error {
	var errs []error
	m.closeOnce.Do(func() {
		m.reloadMu.Lock()
		defer m.reloadMu.Unlock()
		if m.watcher != nil {
			if err := m.watcher.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, src := range m.sources {
			if src == nil {
				continue
			}
			if err := src.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s source: %w", src.Type(), err))
			}
		}
	})
	return errors.Join(errs...)
}

// envProvider is a placeholder for the environment layer, which the loader
// always applies last regardless of where it appears in the source list.
type envProvider struct{}

// NewEnvProvider creates a new environment variable configuration source.
func NewEnvProvider() Source {
	return &envProvider{}
}

func (e *envProvider) Load() (map[string]any, error) {
	return map[string]any{}, nil
}

func (e *envProvider) Type() SourceType {
	return SourceEnv
}

func (e *envProvider) Close() error {
	return nil
}
