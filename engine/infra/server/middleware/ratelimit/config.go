package ratelimit

import (
	"fmt"
	"time"

	"github.com/compozy/statusstream/pkg/config"
	"github.com/ulule/limiter/v3"
)

// Config represents rate limiting configuration
type Config struct {
	// Per-user budget for event emission
	EmitRate RateConfig `yaml:"emit_rate"`

	// Per-caller budget for HTTP requests
	HTTPRate RateConfig `yaml:"http_rate"`

	// Options
	Prefix   string `yaml:"prefix"`
	MaxRetry int    `yaml:"max_retry"`

	// Exclude patterns
	ExcludedPaths []string `yaml:"excluded_paths"`
}

// RateConfig represents a single rate limit configuration
type RateConfig struct {
	Period   time.Duration `yaml:"period"`
	Limit    int64         `yaml:"limit"`
	Disabled bool          `yaml:"disabled,omitempty"`
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() *Config {
	return &Config{
		EmitRate: RateConfig{
			Limit:  100,
			Period: 1 * time.Minute,
		},
		HTTPRate: RateConfig{
			Limit:  600,
			Period: 1 * time.Minute,
		},
		Prefix:   "statusstream:ratelimit:",
		MaxRetry: 3,
		ExcludedPaths: []string{
			"/health",
			"/metrics",
			"/api/v0/health",
		},
	}
}

// FromAppConfig builds the limiter configuration from the application config.
func FromAppConfig(cfg *config.Config) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	rl := cfg.RateLimit
	out.EmitRate = RateConfig{Limit: rl.EmitRate.Limit, Period: rl.EmitRate.Period, Disabled: rl.EmitRate.Disabled}
	out.HTTPRate = RateConfig{Limit: rl.HTTPRate.Limit, Period: rl.HTTPRate.Period, Disabled: rl.HTTPRate.Disabled}
	if rl.Prefix != "" {
		out.Prefix = rl.Prefix
	}
	if rl.MaxRetry > 0 {
		out.MaxRetry = rl.MaxRetry
	}
	if cfg.Monitoring.Path != "" {
		out.ExcludedPaths = append(out.ExcludedPaths, cfg.Monitoring.Path)
	}
	return out
}

// ToLimiterRate converts RateConfig to limiter.Rate
func (rc RateConfig) ToLimiterRate() limiter.Rate {
	return limiter.Rate{
		Period: rc.Period,
		Limit:  rc.Limit,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.EmitRate.Disabled && (c.EmitRate.Limit <= 0 || c.EmitRate.Period <= 0) {
		return fmt.Errorf("emit rate limit and period must be positive")
	}
	if !c.HTTPRate.Disabled && (c.HTTPRate.Limit <= 0 || c.HTTPRate.Period <= 0) {
		return fmt.Errorf("http rate limit and period must be positive")
	}
	return nil
}
