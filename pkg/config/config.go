package config

import (
	"context"
	"time"
)

// Config represents the complete configuration for the status stream service.
// It provides type-safe access to all configuration values with validation.
type Config struct {
	Mode       string           `koanf:"mode"       validate:"oneof=standalone distributed" env:"STATUSSTREAM_MODE"`
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Redis      RedisConfig      `koanf:"redis"`
	Stream     StreamConfig     `koanf:"stream"     validate:"required"`
	RateLimit  RateLimitConfig  `koanf:"ratelimit"`
	Auth       AuthConfig       `koanf:"auth"`
	Store      StoreConfig      `koanf:"store"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Runtime    RuntimeConfig    `koanf:"runtime"    validate:"required"`
	Client     ClientConfig     `koanf:"client"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"             validate:"required"        env:"SERVER_HOST"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535" env:"SERVER_PORT"`
	CORSEnabled     bool          `koanf:"cors_enabled"                                env:"SERVER_CORS_ENABLED"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	Timeout         time.Duration `koanf:"timeout"                                     env:"SERVER_TIMEOUT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"                            env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// RedisConfig contains the connection settings shared by the queue store,
// the channel router and the distributed rate limiter.
type RedisConfig struct {
	URL         string          `koanf:"url"          env:"REDIS_URL"`
	Host        string          `koanf:"host"         env:"REDIS_HOST"`
	Port        string          `koanf:"port"         env:"REDIS_PORT"`
	Password    SensitiveString `koanf:"password"     env:"REDIS_PASSWORD"     sensitive:"true"`
	DB          int             `koanf:"db"           env:"REDIS_DB"           validate:"min=0"`
	PoolSize    int             `koanf:"pool_size"    env:"REDIS_POOL_SIZE"    validate:"min=0"`
	PingTimeout time.Duration   `koanf:"ping_timeout" env:"REDIS_PING_TIMEOUT"`
	DialTimeout time.Duration   `koanf:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
	TLSEnabled  bool            `koanf:"tls_enabled"  env:"REDIS_TLS_ENABLED"`
}

// StreamConfig controls the durable queue and channel fan-out.
type StreamConfig struct {
	Namespace        string        `koanf:"namespace"          validate:"required" env:"STREAM_NAMESPACE"`
	ChannelPrefix    string        `koanf:"channel_prefix"                         env:"STREAM_CHANNEL_PREFIX"`
	QueueTTL         time.Duration `koanf:"queue_ttl"          validate:"gt=0"     env:"STREAM_QUEUE_TTL"`
	QueueMaxLength   int64         `koanf:"queue_max_length"   validate:"min=1"    env:"STREAM_QUEUE_MAX_LENGTH"`
	MaxPayloadAnswer int           `koanf:"max_payload_answer" validate:"min=0"    env:"STREAM_MAX_PAYLOAD_ANSWER"`
	WSPingInterval   time.Duration `koanf:"ws_ping_interval"                       env:"STREAM_WS_PING_INTERVAL"`
	WSWriteTimeout   time.Duration `koanf:"ws_write_timeout"                       env:"STREAM_WS_WRITE_TIMEOUT"`
	Broker           string        `koanf:"broker"             validate:"oneof=redis sugardb" env:"STREAM_BROKER"`
	BrokerDataDir    string        `koanf:"broker_data_dir"                        env:"STREAM_BROKER_DATA_DIR"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	EmitRate RateConfig `koanf:"emit_rate"`
	HTTPRate RateConfig `koanf:"http_rate"`
	Prefix   string     `koanf:"prefix"    env:"RATELIMIT_PREFIX"`
	MaxRetry int        `koanf:"max_retry" env:"RATELIMIT_MAX_RETRY"`
}

// RateConfig represents a single rate limit configuration.
type RateConfig struct {
	Limit    int64         `koanf:"limit"    validate:"min=0"`
	Period   time.Duration `koanf:"period"`
	Disabled bool          `koanf:"disabled"`
}

// AuthConfig contains session token configuration.
type AuthConfig struct {
	Enabled  bool            `koanf:"enabled"   env:"AUTH_ENABLED"`
	Secret   SensitiveString `koanf:"secret"    env:"AUTH_SECRET"    sensitive:"true"`
	Issuer   string          `koanf:"issuer"    env:"AUTH_ISSUER"`
	TokenTTL time.Duration   `koanf:"token_ttl" env:"AUTH_TOKEN_TTL"`
}

// StoreConfig locates the persisted-conversation database.
type StoreConfig struct {
	Driver       string          `koanf:"driver"        validate:"oneof=sqlite postgres memory" env:"STORE_DRIVER"`
	Path         string          `koanf:"path"                                                  env:"STORE_PATH"`
	DSN          SensitiveString `koanf:"dsn"                                                   env:"STORE_DSN"           sensitive:"true"`
	BusyTimeout  time.Duration   `koanf:"busy_timeout"                                          env:"STORE_BUSY_TIMEOUT"`
	MaxOpenConns int             `koanf:"max_open_conns" validate:"min=0"                      env:"STORE_MAX_OPEN_CONNS"`
	OwnerCache   int64           `koanf:"owner_cache"    validate:"min=0"                      env:"STORE_OWNER_CACHE"`
	OwnerTTL     time.Duration   `koanf:"owner_ttl"                                             env:"STORE_OWNER_TTL"`
}

// MonitoringConfig toggles the Prometheus exporter.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"    validate:"startswith=/"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
	LogLevel    string `koanf:"log_level"   validate:"oneof=debug info warn error"          env:"RUNTIME_LOG_LEVEL"`
}

// ClientConfig tunes the stream consumer used by the watch command.
type ClientConfig struct {
	BaseURL              string          `koanf:"base_url"               env:"STATUSSTREAM_BASE_URL"`
	Token                SensitiveString `koanf:"token"                  env:"STATUSSTREAM_TOKEN"              sensitive:"true"`
	ConnectTimeout       time.Duration   `koanf:"connect_timeout"        env:"CLIENT_CONNECT_TIMEOUT"`
	HealthInterval       time.Duration   `koanf:"health_interval"        env:"CLIENT_HEALTH_INTERVAL"`
	PollInterval         time.Duration   `koanf:"poll_interval"          env:"CLIENT_POLL_INTERVAL"`
	ReconnectBaseDelay   time.Duration   `koanf:"reconnect_base_delay"   env:"CLIENT_RECONNECT_BASE_DELAY"`
	MaxReconnectAttempts int             `koanf:"max_reconnect_attempts" env:"CLIENT_MAX_RECONNECT_ATTEMPTS" validate:"min=0"`
	DedupCapacity        int             `koanf:"dedup_capacity"         env:"CLIENT_DEDUP_CAPACITY"         validate:"min=0"`
}

// Service defines the configuration management service interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type that provided a specific configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
	// Close releases any resources held by the source.
	Close() error
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Default returns a Config with default values for development.
func Default() *Config {
	return &Config{
		Mode: ModeStandalone,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5080,
			CORSEnabled:     true,
			CORSOrigins:     []string{"*"},
			Timeout:         30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        "6379",
			PoolSize:    10,
			PingTimeout: 2 * time.Second,
			DialTimeout: 5 * time.Second,
		},
		Stream: StreamConfig{
			Namespace:        "statusstream",
			ChannelPrefix:    "statusstream:",
			QueueTTL:         5 * time.Minute,
			QueueMaxLength:   50,
			MaxPayloadAnswer: 8192,
			WSPingInterval:   30 * time.Second,
			WSWriteTimeout:   10 * time.Second,
			Broker:           BrokerRedis,
		},
		RateLimit: RateLimitConfig{
			EmitRate: RateConfig{Limit: 100, Period: time.Minute},
			HTTPRate: RateConfig{Limit: 600, Period: time.Minute},
			Prefix:   "statusstream:ratelimit:",
			MaxRetry: 3,
		},
		Auth: AuthConfig{
			Enabled:  true,
			Issuer:   "statusstream",
			TokenTTL: 24 * time.Hour,
		},
		Store: StoreConfig{
			Driver:       StoreSQLite,
			Path:         "statusstream.db",
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 10,
			OwnerCache:   10000,
			OwnerTTL:     10 * time.Minute,
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
		Client: ClientConfig{
			BaseURL:              "http://localhost:5080",
			ConnectTimeout:       5 * time.Second,
			HealthInterval:       10 * time.Second,
			PollInterval:         3 * time.Second,
			ReconnectBaseDelay:   time.Second,
			MaxReconnectAttempts: 5,
			DedupCapacity:        500,
		},
	}
}
