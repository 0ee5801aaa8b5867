package monitoring

import (
	"testing"

	"github.com/compozy/statusstream/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	t.Run("Should return config with default values", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.False(t, cfg.Enabled)
		assert.Equal(t, "/metrics", cfg.Path)
	})
}

func TestFromAppConfig(t *testing.T) {
	t.Run("Should copy the monitoring section", func(t *testing.T) {
		app := config.Default()
		app.Monitoring.Enabled = true
		app.Monitoring.Path = "/custom/metrics"
		cfg := FromAppConfig(app)
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "/custom/metrics", cfg.Path)
	})
	t.Run("Should keep the default path when none is configured", func(t *testing.T) {
		app := config.Default()
		app.Monitoring.Path = ""
		assert.Equal(t, "/metrics", FromAppConfig(app).Path)
	})
	t.Run("Should fall back to defaults for a nil config", func(t *testing.T) {
		assert.Equal(t, DefaultConfig(), FromAppConfig(nil))
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "Should accept a root level path", path: "/metrics"},
		{name: "Should reject an empty path", path: "", wantErr: "cannot be empty"},
		{name: "Should reject a relative path", path: "metrics", wantErr: "must start with '/'"},
		{name: "Should reject paths under the api prefix", path: "/api/metrics", wantErr: "cannot be under /api/"},
		{name: "Should reject query parameters", path: "/metrics?x=1", wantErr: "query parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Config{Enabled: true, Path: tt.path}).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
