package config

import (
	"fmt"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
	redisclient "github.com/paulpham157/neptune-fetcher/internal/infra/redis"
	"github.com/paulpham157/neptune-fetcher/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	API       APIConfig       `yaml:"api"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Cache     CacheConfig     `yaml:"cache"`
	Database  postgres.Config `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// APIConfig holds the remote API endpoint settings.
type APIConfig struct {
	URL       string        `yaml:"url"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// RetryConfig holds retry settings for transient API failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// RateLimitConfig holds client-side request rate settings.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"` // 0 = unlimited
	Burst int     `yaml:"burst"`
}

// FetchConfig holds request sizing for the query flows.
type FetchConfig struct {
	DefinitionsBatchSize int `yaml:"definitions_batch_size"`
	ValuesBatchSize      int `yaml:"values_batch_size"`
	SeriesBatchSize      int `yaml:"series_batch_size"`
	RunsBatchSize        int `yaml:"runs_batch_size"`
	RunIDChunkSize       int `yaml:"run_id_chunk_size"`
	Parallelism          int `yaml:"parallelism"`
}

// CacheConfig holds page cache settings.
type CacheConfig struct {
	Enabled bool               `yaml:"enabled"`
	Redis   redisclient.Config `yaml:"redis"` // empty URL = in-process cache
	TTL     time.Duration      `yaml:"ttl"`
	Prefix  string             `yaml:"prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig holds the metrics server settings.
type MetricsConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// Validate checks settings that would otherwise fail later.
func (c *AppConfig) Validate() error {
	if c.API.URL == "" {
		return fmt.Errorf("%w: api.url is required", domain.ErrInvalidConfiguration)
	}
	sizes := map[string]int{
		"fetch.definitions_batch_size": c.Fetch.DefinitionsBatchSize,
		"fetch.values_batch_size":      c.Fetch.ValuesBatchSize,
		"fetch.series_batch_size":      c.Fetch.SeriesBatchSize,
		"fetch.runs_batch_size":        c.Fetch.RunsBatchSize,
		"fetch.run_id_chunk_size":      c.Fetch.RunIDChunkSize,
		"fetch.parallelism":            c.Fetch.Parallelism,
		"retry.max_attempts":           c.Retry.MaxAttempts,
	}
	for name, v := range sizes {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", domain.ErrInvalidConfiguration, name, v)
		}
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("%w: rate_limit.rps must not be negative", domain.ErrInvalidConfiguration)
	}
	return nil
}
