package config

import "fmt"

// validateCustom enforces cross-field rules that struct tags cannot express.
func validateCustom(cfg *Config) error {
	if cfg.Mode == ModeDistributed && cfg.Redis.URL == "" && cfg.Redis.Host == "" {
		return fmt.Errorf("distributed mode requires redis.url or redis.host")
	}
	if cfg.Stream.Broker == BrokerSugarDB && cfg.Mode == ModeDistributed {
		return fmt.Errorf("stream.broker sugardb is only supported in standalone mode")
	}
	if cfg.Store.Driver == StoreSQLite && cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required for the sqlite driver")
	}
	if cfg.Store.Driver == StorePostgres && cfg.Store.DSN.Value() == "" {
		return fmt.Errorf("store.dsn is required for the postgres driver")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.Secret.Value()) < 16 && cfg.Runtime.Environment == "production" {
		return fmt.Errorf("auth.secret must be at least 16 bytes in production")
	}
	if !cfg.RateLimit.EmitRate.Disabled && cfg.RateLimit.EmitRate.Period <= 0 {
		return fmt.Errorf("ratelimit.emit_rate.period must be positive")
	}
	if cfg.Stream.QueueMaxLength <= 0 {
		return fmt.Errorf("stream.queue_max_length must be positive")
	}
	return nil
}
