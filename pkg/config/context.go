package config

import (
	"context"
	"sync"

	"github.com/compozy/statusstream/pkg/logger"
)

type contextKey struct{}

var (
	fallbackOnce    sync.Once
	fallbackManager *Manager
)

// ContextWithManager attaches m to ctx for ManagerFromContext.
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, contextKey{}, m)
}

// ManagerFromContext returns the manager attached to ctx. Without one it
// returns a process-wide manager loaded from defaults and the environment,
// so the result is never nil.
func ManagerFromContext(ctx context.Context) *Manager {
	if ctx != nil {
		if m, ok := ctx.Value(contextKey{}).(*Manager); ok && m != nil {
			return m
		}
	}
	fallbackOnce.Do(func() {
		m := NewManager(NewService())
		if _, err := m.Load(ctx, NewEnvProvider()); err != nil {
			logger.FromContext(ctx).Warn("Invalid environment configuration, using built-in defaults", "error", err)
			m.current.Store(Default())
		}
		fallbackManager = m
	})
	return fallbackManager
}

// FromContext is shorthand for ManagerFromContext(ctx).Get().
func FromContext(ctx context.Context) *Config {
	return ManagerFromContext(ctx).Get()
}
