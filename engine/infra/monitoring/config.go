package monitoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/compozy/statusstream/pkg/config"
)

const defaultPath = "/metrics"

// Config selects whether the Prometheus exporter runs and where it mounts.
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Path    string `json:"path"    yaml:"path"    mapstructure:"path"`
}

func DefaultConfig() *Config {
	return &Config{Path: defaultPath}
}

// FromAppConfig reads the monitoring section; an empty path keeps the default.
func FromAppConfig(cfg *config.Config) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.Enabled = cfg.Monitoring.Enabled
	if p := strings.TrimSpace(cfg.Monitoring.Path); p != "" {
		out.Path = p
	}
	return out
}

// Validate requires an absolute, query-free path outside the API prefix so
// the scrape endpoint never shadows an API route.
func (c *Config) Validate() error {
	switch {
	case c.Path == "":
		return errors.New("monitoring path cannot be empty")
	case !strings.HasPrefix(c.Path, "/"):
		return fmt.Errorf("monitoring path must start with '/': got %s", c.Path)
	case c.Path == "/api" || strings.HasPrefix(c.Path, "/api/"):
		return errors.New("monitoring path cannot be under /api/")
	case strings.ContainsAny(c.Path, "?#"):
		return errors.New("monitoring path cannot contain query parameters")
	}
	return nil
}
