package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:50051", cfg.Service.URL)
	assert.Equal(t, 30*time.Second, cfg.Service.PageTimeout)
	assert.Equal(t, 4, cfg.Service.ConnPoolSize)
	assert.Equal(t, 1000, cfg.Query.PageSize)
	assert.Equal(t, 64, cfg.Query.MaxEntitiesPerCall)
	assert.Equal(t, 16, cfg.Query.MaxMetricsPerCall)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
service:
  url: reporting.example.com:443
  api_key: secret
  page_timeout: 10s
  rate_limit: 5.0
  rate_limit_burst: 10
query:
  page_size: 250
  max_entities_per_call: 8
retry:
  max_attempts: 5
  initial_backoff: 100ms
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "reporting.example.com:443", cfg.Service.URL)
	assert.Equal(t, "secret", cfg.Service.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Service.PageTimeout)
	assert.Equal(t, 5.0, cfg.Service.RateLimit)
	assert.Equal(t, 250, cfg.Query.PageSize)
	assert.Equal(t, 8, cfg.Query.MaxEntitiesPerCall)
	// Unset values keep their defaults.
	assert.Equal(t, 16, cfg.Query.MaxMetricsPerCall)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("REPORTING_SERVICE_URL", "env.example.com:50051")
	t.Setenv("REPORTING_SERVICE_API_KEY", "env-key")
	t.Setenv("REPORTING_QUERY_PAGE_SIZE", "123")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env.example.com:50051", cfg.Service.URL)
	assert.Equal(t, "env-key", cfg.Service.APIKey)
	assert.Equal(t, 123, cfg.Query.PageSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Service.URL = "" }},
		{"zero page size", func(c *Config) { c.Query.PageSize = 0 }},
		{"zero entity limit", func(c *Config) { c.Query.MaxEntitiesPerCall = 0 }},
		{"zero metric limit", func(c *Config) { c.Query.MaxMetricsPerCall = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"multiplier below one", func(c *Config) { c.Retry.BackoffMultiplier = 1.0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
