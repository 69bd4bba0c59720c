// Package config provides centralized configuration management for the
// application. Settings load from environment variables (with an
// optional .env file) and are validated on startup to fail fast on
// misconfiguration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Platform  PlatformConfig
	Database  DatabaseConfig
	Bulk      BulkConfig
	Jobs      JobsConfig
	Retention RetentionConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`

	// WriteTimeout defaults to 0 so SSE progress streams are never cut
	// off mid-job.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// PlatformConfig holds remote CRM platform connection settings.
type PlatformConfig struct {
	// BaseURL is the org's instance URL, e.g. https://example.my.platform.com
	BaseURL string `env:"PLATFORM_BASE_URL"`

	// AccessToken is the session token used for API calls.
	AccessToken string `env:"PLATFORM_ACCESS_TOKEN"`

	// APIVersion is the REST API version segment (e.g. "61.0").
	APIVersion string `env:"PLATFORM_API_VERSION" envDefault:"61.0"`

	RequestTimeout time.Duration `env:"PLATFORM_REQUEST_TIMEOUT" envDefault:"120s"`
}

// DatabaseConfig holds the optional job-history database settings.
// History recording is disabled when URL is empty.
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	MaxConns int    `env:"DATABASE_MAX_CONNS" envDefault:"4"`
}

// BulkConfig holds the remote API limits the pipeline must respect.
// These mirror the platform's documented limits, so they are
// configuration rather than constants baked into the algorithms.
type BulkConfig struct {
	// ChunkSize is the maximum record count per collection write or
	// delete call.
	ChunkSize int `env:"BULK_CHUNK_SIZE" envDefault:"200"`

	// QueryBudget caps the character length of one composed lookup
	// query.
	QueryBudget int `env:"BULK_QUERY_BUDGET" envDefault:"16000"`

	PollInterval time.Duration `env:"BULK_POLL_INTERVAL" envDefault:"5s"`
	PollAttempts int           `env:"BULK_POLL_ATTEMPTS" envDefault:"500"`
}

// JobsConfig holds dispatcher settings.
type JobsConfig struct {
	MaxConcurrent int           `env:"JOBS_MAX_CONCURRENT" envDefault:"10"`
	AcquireWait   time.Duration `env:"JOBS_ACQUIRE_WAIT" envDefault:"10s"`
	QueueDepth    int           `env:"JOBS_QUEUE_DEPTH" envDefault:"16"`
	Timeout       time.Duration `env:"JOBS_TIMEOUT" envDefault:"60m"`
}

// RetentionConfig holds registry and history retention settings.
type RetentionConfig struct {
	FinishedJobTTL time.Duration `env:"RETENTION_FINISHED_JOB_TTL" envDefault:"1h"`
	HistoryTTL     time.Duration `env:"RETENTION_HISTORY_TTL" envDefault:"720h"`
	SweepInterval  time.Duration `env:"RETENTION_SWEEP_INTERVAL" envDefault:"5m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads configuration from the environment (plus an optional .env
// file), applies defaults, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration consistency. Required values and
// nonsensical limits fail here rather than at first use.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Platform.BaseURL == "" {
		return errors.New("PLATFORM_BASE_URL is required")
	}
	if c.Platform.AccessToken == "" {
		return errors.New("PLATFORM_ACCESS_TOKEN is required")
	}
	if c.Bulk.ChunkSize < 1 {
		return fmt.Errorf("bulk chunk size must be positive, got %d", c.Bulk.ChunkSize)
	}
	if c.Bulk.QueryBudget < 100 {
		return fmt.Errorf("bulk query budget too small: %d", c.Bulk.QueryBudget)
	}
	if c.Bulk.PollAttempts < 1 {
		return fmt.Errorf("poll attempts must be positive, got %d", c.Bulk.PollAttempts)
	}
	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent jobs must be positive, got %d", c.Jobs.MaxConcurrent)
	}
	return nil
}
