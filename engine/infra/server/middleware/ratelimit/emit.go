package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
)

// ErrRateLimitExceeded is returned once a user exhausts the emission budget
// for the current window.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

const emitKeyPrefix = "emit:"

// EmitLimiter enforces a fixed-window emission budget per acting user.
type EmitLimiter struct {
	store    limiter.Store
	limiter  atomic.Pointer[limiter.Limiter]
	disabled atomic.Bool
}

// NewEmitLimiter creates a limiter backed by Redis when client is non-nil.
func NewEmitLimiter(cfg *Config, client redis.UniversalClient) (*EmitLimiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := newStore(cfg, client)
	if err != nil {
		return nil, err
	}
	l := &EmitLimiter{store: store}
	l.limiter.Store(limiter.New(store, cfg.EmitRate.ToLimiterRate()))
	l.disabled.Store(cfg.EmitRate.Disabled)
	return l, nil
}

// SetRate swaps the emission budget in place. Counters already stored for
// the current window are kept.
func (l *EmitLimiter) SetRate(rate RateConfig) error {
	if !rate.Disabled && (rate.Limit <= 0 || rate.Period <= 0) {
		return fmt.Errorf("emit rate limit and period must be positive")
	}
	l.limiter.Store(limiter.New(l.store, rate.ToLimiterRate()))
	l.disabled.Store(rate.Disabled)
	return nil
}

// CheckAndIncrement counts one emission for userID. The system identity and
// anonymous callers are never limited. Store failures fail open.
func (l *EmitLimiter) CheckAndIncrement(ctx context.Context, userID string) error {
	if l == nil || l.disabled.Load() || userID == "" || userctx.IsSystem(userID) {
		return nil
	}
	lim := l.limiter.Load()
	res, err := lim.Get(ctx, emitKeyPrefix+userID)
	if err != nil {
		logger.FromContext(ctx).Warn("Rate limit store unavailable, allowing emission", "user_id", userID, "error", err)
		return nil
	}
	if res.Reached {
		recordBlocked(ctx, scopeEmit, "user")
		return fmt.Errorf("%w: %d events per %s", ErrRateLimitExceeded, res.Limit, lim.Rate.Period)
	}
	return nil
}

// Remaining reports the budget left for userID in the current window without
// consuming it.
func (l *EmitLimiter) Remaining(ctx context.Context, userID string) (int64, error) {
	res, err := l.limiter.Load().Peek(ctx, emitKeyPrefix+userID)
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit: %w", err)
	}
	return res.Remaining, nil
}
