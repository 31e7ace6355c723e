package reenrich

import (
	"os"
	"strconv"
	"time"
)

// Config holds re-enrichment-specific configuration.
type Config struct {
	// From is the start of the kill_time range (inclusive).
	From time.Time

	// To is the end of the kill_time range (exclusive).
	// Zero means now.
	To time.Time

	// Concurrency is the number of concurrent enrichment operations.
	Concurrency int

	// DryRun re-enriches without writing back.
	DryRun bool

	// ProgressInterval is how often to log progress.
	ProgressInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		From:             time.Now().UTC().Add(-24 * time.Hour),
		Concurrency:      10,
		DryRun:           false,
		ProgressInterval: 10 * time.Second,
	}
}

// LoadConfig loads re-enrichment configuration from environment variables.
func LoadConfig() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("REENRICH_FROM"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			cfg.From = t
		}
	}

	if v := os.Getenv("REENRICH_TO"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			cfg.To = t
		}
	}

	if v := os.Getenv("REENRICH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}

	if v := os.Getenv("REENRICH_DRY_RUN"); v == "true" || v == "1" {
		cfg.DryRun = true
	}

	if v := os.Getenv("REENRICH_PROGRESS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ProgressInterval = d
		}
	}

	return cfg
}
