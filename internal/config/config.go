// Package config loads runtime settings from STATEHUB_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/recovery"
	"github.com/roach88/statehub/internal/store"
	"github.com/roach88/statehub/internal/workflow"
)

// Config holds process configuration. CLI flags override these values.
type Config struct {
	DB     string `env:"STATEHUB_DB"     envDefault:"statehub.db"`
	Tenant string `env:"STATEHUB_TENANT"`
	Specs  string `env:"STATEHUB_SPECS"`

	DBBusyTimeout time.Duration `env:"STATEHUB_DB_BUSY_TIMEOUT" envDefault:"5s"`
	DBSynchronous string        `env:"STATEHUB_DB_SYNCHRONOUS"  envDefault:"NORMAL"`

	PollInterval    time.Duration `env:"STATEHUB_POLL_INTERVAL"     envDefault:"250ms"`
	MaxPollInterval time.Duration `env:"STATEHUB_MAX_POLL_INTERVAL" envDefault:"5s"`
	WatchInterval   time.Duration `env:"STATEHUB_WATCH_INTERVAL"    envDefault:"5s"`
	TailInterval    time.Duration `env:"STATEHUB_TAIL_INTERVAL"     envDefault:"200ms"`

	UseCheckpoint       bool          `env:"STATEHUB_USE_CHECKPOINT"       envDefault:"true"`
	CheckpointInterval  time.Duration `env:"STATEHUB_CHECKPOINT_INTERVAL"  envDefault:"1m"`
	CheckpointThreshold int64         `env:"STATEHUB_CHECKPOINT_THRESHOLD" envDefault:"100"`
	CheckpointKeep      int           `env:"STATEHUB_CHECKPOINT_KEEP"      envDefault:"5"`

	ScanInterval    time.Duration `env:"STATEHUB_SCAN_INTERVAL"    envDefault:"1s"`
	ScanConcurrency int           `env:"STATEHUB_SCAN_CONCURRENCY" envDefault:"8"`

	LogLevel string `env:"STATEHUB_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("config: STATEHUB_DB is required")
	}
	for name, d := range map[string]time.Duration{
		"STATEHUB_DB_BUSY_TIMEOUT":     c.DBBusyTimeout,
		"STATEHUB_POLL_INTERVAL":       c.PollInterval,
		"STATEHUB_MAX_POLL_INTERVAL":   c.MaxPollInterval,
		"STATEHUB_WATCH_INTERVAL":      c.WatchInterval,
		"STATEHUB_TAIL_INTERVAL":       c.TailInterval,
		"STATEHUB_CHECKPOINT_INTERVAL": c.CheckpointInterval,
		"STATEHUB_SCAN_INTERVAL":       c.ScanInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, d)
		}
	}
	if c.MaxPollInterval < c.PollInterval {
		return fmt.Errorf("config: STATEHUB_MAX_POLL_INTERVAL (%s) is below STATEHUB_POLL_INTERVAL (%s)", c.MaxPollInterval, c.PollInterval)
	}
	if c.CheckpointThreshold < 0 || c.CheckpointKeep < 0 || c.ScanConcurrency < 0 {
		return fmt.Errorf("config: checkpoint threshold, keep and scan concurrency must not be negative")
	}
	switch strings.ToUpper(c.DBSynchronous) {
	case store.SyncOff, store.SyncNormal, store.SyncFull:
	default:
		return fmt.Errorf("config: STATEHUB_DB_SYNCHRONOUS must be OFF, NORMAL or FULL, got %q", c.DBSynchronous)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel (debug, info, warn, error).
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: STATEHUB_LOG_LEVEL: %w", err)
	}
	return l, nil
}

// StoreOptions maps the database settings onto store.Open options.
func (c Config) StoreOptions() []store.Option {
	return []store.Option{
		store.WithBusyTimeout(c.DBBusyTimeout),
		store.WithSynchronous(strings.ToUpper(c.DBSynchronous)),
	}
}

// ConnOptions maps the config onto logconn.Options.
func (c Config) ConnOptions(now func() time.Time, logger *slog.Logger) logconn.Options {
	return logconn.Options{
		Tenant:          c.Tenant,
		PollInterval:    c.PollInterval,
		MaxPollInterval: c.MaxPollInterval,
		WatchInterval:   c.WatchInterval,
		TailInterval:    c.TailInterval,
		Now:             now,
		Logger:          logger,
	}
}

// CheckpointOptions maps the config onto recovery.CheckpointOptions.
func (c Config) CheckpointOptions(now func() time.Time, logger *slog.Logger) recovery.CheckpointOptions {
	return recovery.CheckpointOptions{
		Interval:  c.CheckpointInterval,
		Threshold: c.CheckpointThreshold,
		Keep:      c.CheckpointKeep,
		Now:       now,
		Logger:    logger,
	}
}

// WorkflowConfig maps the scan settings onto a workflow.Config.
func (c Config) WorkflowConfig(base workflow.Config) workflow.Config {
	base.ScanInterval = c.ScanInterval
	base.ScanConcurrency = c.ScanConcurrency
	return base
}
