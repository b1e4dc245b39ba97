// Package config loads gateway configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all gateway configuration. Tags:
//
//	env: environment variable name
//	envDefault: default when unset
type Config struct {
	Env      string `env:"ENV" envDefault:""`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`
	SessionsDir string `env:"SESSIONS_DIR" envDefault:"./sessions"`

	// ingestion file paths; empty means "derive from DataDir"
	LogPath        string `env:"INGEST_LOG_PATH"`
	CheckpointPath string `env:"INGEST_CHECKPOINT_PATH"`
	DLQPath        string `env:"INGEST_DLQ_PATH"`

	QueueCapacity  int `env:"INGEST_QUEUE_CAPACITY" envDefault:"5000"`
	BatchSize      int `env:"INGEST_BATCH_SIZE" envDefault:"100"`
	BatchMaxWaitMs int `env:"INGEST_BATCH_MAX_WAIT_MS" envDefault:"250"`
	Workers        int `env:"INGEST_WORKERS" envDefault:"2"`

	RetryBaseMs       int `env:"INGEST_RETRY_BASE_MS" envDefault:"100"`
	RetryMaxMs        int `env:"INGEST_RETRY_MAX_MS" envDefault:"5000"`
	RetryMaxAttempts  int `env:"INGEST_RETRY_MAX_ATTEMPTS" envDefault:"10"`
	RetryMaxHorizonMs int `env:"INGEST_RETRY_MAX_HORIZON_MS" envDefault:"600000"`

	// 0 means "derive": 90% of the queue capacity
	ReadyMaxQueueDepth int `env:"INGEST_READY_MAX_QUEUE_DEPTH" envDefault:"0"`
}

// Load reads .env (optional), parses the environment, applies derived
// defaults, and validates.
func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(cfg.DataDir, "ingestion.log")
	}
	if cfg.CheckpointPath == "" {
		cfg.CheckpointPath = filepath.Join(cfg.DataDir, "ingestion.offset")
	}
	if cfg.DLQPath == "" {
		cfg.DLQPath = filepath.Join(cfg.DataDir, "dlq.log")
	}
	if cfg.ReadyMaxQueueDepth <= 0 {
		cfg.ReadyMaxQueueDepth = cfg.QueueCapacity * 9 / 10
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and required values
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("INGEST_QUEUE_CAPACITY must be > 0, got %d", c.QueueCapacity)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be > 0, got %d", c.BatchSize)
	}
	if c.BatchMaxWaitMs < 1 {
		return fmt.Errorf("INGEST_BATCH_MAX_WAIT_MS must be > 0, got %d", c.BatchMaxWaitMs)
	}
	if c.Workers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be > 0, got %d", c.Workers)
	}
	if c.RetryBaseMs < 1 || c.RetryMaxMs < c.RetryBaseMs {
		return fmt.Errorf("invalid retry window: base=%dms max=%dms", c.RetryBaseMs, c.RetryMaxMs)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("INGEST_RETRY_MAX_ATTEMPTS must be > 0, got %d", c.RetryMaxAttempts)
	}
	if c.ReadyMaxQueueDepth > c.QueueCapacity {
		return fmt.Errorf("INGEST_READY_MAX_QUEUE_DEPTH (%d) exceeds queue capacity (%d)",
			c.ReadyMaxQueueDepth, c.QueueCapacity)
	}
	return nil
}

// BatchMaxWait returns the batch age flush threshold
func (c *Config) BatchMaxWait() time.Duration {
	return time.Duration(c.BatchMaxWaitMs) * time.Millisecond
}

// RetryBase returns the first backoff step
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

// RetryMax returns the backoff ceiling
func (c *Config) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxMs) * time.Millisecond
}

// RetryMaxHorizon returns the total retry budget per record
func (c *Config) RetryMaxHorizon() time.Duration {
	return time.Duration(c.RetryMaxHorizonMs) * time.Millisecond
}

// LogConfig logs the effective configuration
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("http_addr", c.HTTPAddr).
		Str("data_dir", c.DataDir).
		Str("sessions_dir", c.SessionsDir).
		Str("log_path", c.LogPath).
		Int("queue_capacity", c.QueueCapacity).
		Int("batch_size", c.BatchSize).
		Int("batch_max_wait_ms", c.BatchMaxWaitMs).
		Int("workers", c.Workers).
		Int("ready_max_queue_depth", c.ReadyMaxQueueDepth).
		Msg("configuration loaded")
}
