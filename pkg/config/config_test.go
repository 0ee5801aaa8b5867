package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Default(t *testing.T) {
	t.Run("Should return valid default configuration", func(t *testing.T) {
		cfg := Default()

		require.NotNil(t, cfg)
		assert.Equal(t, ModeStandalone, cfg.Mode)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 5080, cfg.Server.Port)

		assert.Equal(t, "statusstream", cfg.Stream.Namespace)
		assert.Equal(t, 5*time.Minute, cfg.Stream.QueueTTL)
		assert.Equal(t, int64(50), cfg.Stream.QueueMaxLength)

		assert.Equal(t, int64(100), cfg.RateLimit.EmitRate.Limit)
		assert.Equal(t, time.Minute, cfg.RateLimit.EmitRate.Period)

		assert.Equal(t, time.Second, cfg.Client.ReconnectBaseDelay)
		assert.Equal(t, 5, cfg.Client.MaxReconnectAttempts)
	})

	t.Run("Should pass validation", func(t *testing.T) {
		require.NoError(t, NewService().Validate(Default()))
	})
}

func TestConfig_Validation(t *testing.T) {
	t.Run("Should validate server port range", func(t *testing.T) {
		tests := []struct {
			name    string
			port    int
			wantErr bool
		}{
			{"valid port", 5080, false},
			{"minimum port", 1, false},
			{"maximum port", 65535, false},
			{"port too low", 0, true},
			{"port too high", 65536, true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				cfg := Default()
				cfg.Server.Port = tt.port
				err := NewService().Validate(cfg)
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			})
		}
	})

	t.Run("Should reject unknown modes", func(t *testing.T) {
		cfg := Default()
		cfg.Mode = "cluster"
		assert.Error(t, NewService().Validate(cfg))
	})

	t.Run("Should require a redis endpoint in distributed mode", func(t *testing.T) {
		cfg := Default()
		cfg.Mode = ModeDistributed
		cfg.Redis.Host = ""
		cfg.Redis.URL = ""
		err := NewService().Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "distributed mode")
	})

	t.Run("Should require a strong secret in production", func(t *testing.T) {
		cfg := Default()
		cfg.Runtime.Environment = "production"
		cfg.Auth.Secret = "short"
		assert.Error(t, NewService().Validate(cfg))
		cfg.Auth.Secret = "0123456789abcdef0123"
		assert.NoError(t, NewService().Validate(cfg))
	})
}

func TestGenerateEnvMappings(t *testing.T) {
	t.Run("Should map env tags to dotted config paths", func(t *testing.T) {
		m := GenerateEnvToConfigMap()
		assert.Equal(t, "server.port", m["SERVER_PORT"])
		assert.Equal(t, "stream.queue_ttl", m["STREAM_QUEUE_TTL"])
		assert.Equal(t, "client.token", m["STATUSSTREAM_TOKEN"])
	})

	t.Run("Should flag secrets as sensitive", func(t *testing.T) {
		for _, m := range GenerateEnvMappings() {
			if m.EnvVar == "AUTH_SECRET" {
				assert.True(t, m.Sensitive)
				return
			}
		}
		t.Fatal("AUTH_SECRET mapping not found")
	})
}
