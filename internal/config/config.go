// Package config loads application settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	DatabaseURL string
	ListenAddr  string

	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	PollInterval  time.Duration
	PollBatchSize int
	RefundTimeout time.Duration

	DispatchInterval  time.Duration
	DispatchBatchSize int

	IdempotencyTTL    time.Duration
	SweepInterval     time.Duration
	StalePendingAfter time.Duration
}

// Load reads configuration from environment variables, applying defaults for
// everything operational and validating the rest.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     os.Getenv("APP_ENV"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		ProviderBaseURL: os.Getenv("PROVIDER_BASE_URL"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),
	}

	var err error
	if cfg.ProviderTimeout, err = envDuration("PROVIDER_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollBatchSize, err = envInt("POLL_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.RefundTimeout, err = envDuration("REFUND_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DispatchInterval, err = envDuration("DISPATCH_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.DispatchBatchSize, err = envInt("DISPATCH_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = envDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = envDuration("SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.StalePendingAfter, err = envDuration("STALE_PENDING_AFTER", time.Hour); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.ProviderBaseURL == "" {
		missing = append(missing, "PROVIDER_BASE_URL")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.Environment == "production" || c.Environment == "staging" {
		if c.ProviderAPIKey == "" {
			return errors.New("missing required environment variables for " + c.Environment + ": PROVIDER_API_KEY")
		}
	}

	if c.PollBatchSize <= 0 || c.DispatchBatchSize <= 0 {
		return errors.New("batch sizes must be positive")
	}
	if c.RefundTimeout <= 0 {
		return errors.New("REFUND_TIMEOUT must be positive")
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer in %s: %w", key, err)
	}
	return n, nil
}
