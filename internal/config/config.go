// Package config loads the reporting client's settings from a YAML file
// and REPORTING_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the reporting client.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Query   QueryConfig   `mapstructure:"query"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServiceConfig struct {
	URL            string        `mapstructure:"url"`
	APIKey         string        `mapstructure:"api_key"`
	PageTimeout    time.Duration `mapstructure:"page_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	ConnPoolSize   int           `mapstructure:"conn_pool_size"`
}

type QueryConfig struct {
	PageSize           int `mapstructure:"page_size"`
	MaxEntitiesPerCall int `mapstructure:"max_entities_per_call"`
	MaxMetricsPerCall  int `mapstructure:"max_metrics_per_call"`
}

type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional YAML file and REPORTING_*
// environment variables, the environment taking precedence. An empty path
// skips the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REPORTING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.url", "localhost:50051")
	v.SetDefault("service.api_key", "")
	v.SetDefault("service.page_timeout", "30s")
	v.SetDefault("service.rate_limit", 0.0)
	v.SetDefault("service.rate_limit_burst", 1)
	v.SetDefault("service.conn_pool_size", 4)

	v.SetDefault("query.page_size", 1000)
	v.SetDefault("query.max_entities_per_call", 64)
	v.SetDefault("query.max_metrics_per_call", 16)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "250ms")
	v.SetDefault("retry.max_backoff", "10s")
	v.SetDefault("retry.backoff_multiplier", 2.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	if c.Service.URL == "" {
		return fmt.Errorf("service.url must be set")
	}
	if c.Query.PageSize <= 0 {
		return fmt.Errorf("query.page_size must be positive, got %d", c.Query.PageSize)
	}
	if c.Query.MaxEntitiesPerCall <= 0 || c.Query.MaxMetricsPerCall <= 0 {
		return fmt.Errorf("query batch limits must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffMultiplier <= 1 {
		return fmt.Errorf("retry.backoff_multiplier must be greater than 1, got %g", c.Retry.BackoffMultiplier)
	}
	return nil
}
