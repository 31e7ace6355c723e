package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the killfeed indexer.
type Config struct {
	// PostgreSQL
	PostgresURL string

	// Redis
	RedisURL      string
	RawTopic      string
	EnrichedTopic string
	AlertsTopic   string
	ConsumerGroup string

	// Killstream websocket
	StreamURL        string
	StreamChannel    string
	WSMaxRetries     int
	WSReconnectDelay time.Duration

	// Upstream services
	ESIEndpoints        []string
	MarketEndpoints     []string
	MutamarketEndpoints []string
	UpstreamRPS         int
	UpstreamBurst       int
	UserAgent           string

	// Caching
	NameTTL  time.Duration
	PriceTTL time.Duration

	// Task supervision
	MaxConcurrentTasks int
	TaskMaxDuration    time.Duration
	TaskWarningTime    time.Duration

	// Profiles
	ProfilePollInterval time.Duration

	// Partitions
	PartitionCheckInterval time.Duration

	// Queue stats
	QueueStatsInterval time.Duration

	// Logging
	LogLevel string

	// HTTP API
	HTTPEnabled bool
	HTTPAddr    string
	AdminToken  string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		RawTopic:               "killmails-raw",
		EnrichedTopic:          "killmails-enriched",
		AlertsTopic:            "killmail-alerts",
		ConsumerGroup:          "killfeed-workers",
		StreamChannel:          "killstream",
		WSMaxRetries:           25,
		WSReconnectDelay:       time.Second,
		UpstreamRPS:            20,
		UpstreamBurst:          40,
		UserAgent:              "killfeed-indexer",
		NameTTL:                24 * time.Hour,
		PriceTTL:               time.Hour,
		MaxConcurrentTasks:     50,
		TaskMaxDuration:        30 * time.Second,
		TaskWarningTime:        15 * time.Second,
		ProfilePollInterval:    30 * time.Second,
		PartitionCheckInterval: 6 * time.Hour,
		QueueStatsInterval:     time.Minute,
		LogLevel:               "info",
		HTTPEnabled:            true,
		HTTPAddr:               ":8080",
	}

	// Required
	cfg.PostgresURL = os.Getenv("POSTGRES_URL")
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg.StreamURL = os.Getenv("STREAM_URL")
	if cfg.StreamURL == "" {
		return nil, fmt.Errorf("STREAM_URL is required")
	}

	// Optional overrides
	if v := os.Getenv("RAW_TOPIC"); v != "" {
		cfg.RawTopic = v
	}
	if v := os.Getenv("ENRICHED_TOPIC"); v != "" {
		cfg.EnrichedTopic = v
	}
	if v := os.Getenv("ALERTS_TOPIC"); v != "" {
		cfg.AlertsTopic = v
	}
	if v := os.Getenv("CONSUMER_GROUP"); v != "" {
		cfg.ConsumerGroup = v
	}
	if v := os.Getenv("STREAM_CHANNEL"); v != "" {
		cfg.StreamChannel = v
	}

	if v := os.Getenv("WS_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WSMaxRetries = n
		}
	}
	if v := os.Getenv("WS_RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WSReconnectDelay = d
		}
	}

	cfg.ESIEndpoints = endpoints("ESI_URL", "https://esi.evetech.net")
	cfg.MarketEndpoints = endpoints("MARKET_URL", "https://market.fuzzwork.co.uk")
	cfg.MutamarketEndpoints = endpoints("MUTAMARKET_URL", "https://mutamarket.com")

	if v := os.Getenv("UPSTREAM_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UpstreamRPS = n
		}
	}
	if v := os.Getenv("UPSTREAM_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UpstreamBurst = n
		}
	}
	if v := os.Getenv("USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}

	if v := os.Getenv("NAME_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.NameTTL = d
		}
	}
	if v := os.Getenv("PRICE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PriceTTL = d
		}
	}

	if v := os.Getenv("MAX_CONCURRENT_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentTasks = n
		}
	}
	if v := os.Getenv("TASK_MAX_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TaskMaxDuration = d
		}
	}
	if v := os.Getenv("TASK_WARNING_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TaskWarningTime = d
		}
	}

	if v := os.Getenv("PROFILE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ProfilePollInterval = d
		}
	}
	if v := os.Getenv("PARTITION_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PartitionCheckInterval = d
		}
	}
	if v := os.Getenv("QUEUE_STATS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.QueueStatsInterval = d
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("HTTP_ENABLED"); v != "" {
		cfg.HTTPEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	if cfg.AdminToken == "" {
		cfg.AdminToken = "devtoken" // Default token for development
	}

	return cfg, nil
}

func endpoints(env, fallback string) []string {
	if v := os.Getenv(env); v != "" {
		return []string{v}
	}
	return []string{fallback}
}
