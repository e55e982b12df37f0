package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Environment variables that override the YAML file.
const (
	EnvAPIURL               = "NEPTUNE_API_URL"
	EnvAPIToken             = "NEPTUNE_API_TOKEN"
	EnvDefinitionsBatchSize = "NEPTUNE_FETCHER_ATTRIBUTE_DEFINITIONS_BATCH_SIZE"
	EnvValuesBatchSize      = "NEPTUNE_FETCHER_ATTRIBUTE_VALUES_BATCH_SIZE"
	EnvRunIDChunkSize       = "NEPTUNE_FETCHER_RUN_ID_CHUNK_SIZE"
	EnvParallelism          = "NEPTUNE_FETCHER_PARALLELISM"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// plus environment overrides.
func LoadOrDefault(path string) (*AppConfig, error) {
	if path != "" {
		cfg, err := Load(path)
		if !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	var cfg AppConfig
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.URL = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		cfg.API.Token = v
	}

	ints := map[string]*int{
		EnvDefinitionsBatchSize: &cfg.Fetch.DefinitionsBatchSize,
		EnvValuesBatchSize:      &cfg.Fetch.ValuesBatchSize,
		EnvRunIDChunkSize:       &cfg.Fetch.RunIDChunkSize,
		EnvParallelism:          &cfg.Fetch.Parallelism,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", name, v, err)
		}
		*dst = n
	}
	return nil
}

// Set defaults if necessary
func applyDefaults(cfg *AppConfig) {
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 60 * time.Second
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = "neptune-fetcher-go"
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = time.Minute
	}
	if cfg.Retry.BackoffMultiple == 0 {
		cfg.Retry.BackoffMultiple = 2.0
	}

	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 1
	}

	if cfg.Fetch.DefinitionsBatchSize == 0 {
		cfg.Fetch.DefinitionsBatchSize = 10_000
	}
	if cfg.Fetch.ValuesBatchSize == 0 {
		cfg.Fetch.ValuesBatchSize = 10_000
	}
	if cfg.Fetch.SeriesBatchSize == 0 {
		cfg.Fetch.SeriesBatchSize = 1_000
	}
	if cfg.Fetch.RunsBatchSize == 0 {
		cfg.Fetch.RunsBatchSize = 10_000
	}
	if cfg.Fetch.RunIDChunkSize == 0 {
		cfg.Fetch.RunIDChunkSize = 10_000
	}
	if cfg.Fetch.Parallelism == 0 {
		cfg.Fetch.Parallelism = 4
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "neptune-fetcher"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
