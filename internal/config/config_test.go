package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statehub/internal/workflow"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "statehub.db", cfg.DB)
	assert.Empty(t, cfg.Tenant)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.MaxPollInterval)
	assert.True(t, cfg.UseCheckpoint)
	assert.Equal(t, int64(100), cfg.CheckpointThreshold)
	assert.Equal(t, time.Second, cfg.ScanInterval)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STATEHUB_DB", "/tmp/hub.db")
	t.Setenv("STATEHUB_TENANT", "acme")
	t.Setenv("STATEHUB_CHECKPOINT_THRESHOLD", "7")
	t.Setenv("STATEHUB_USE_CHECKPOINT", "false")
	t.Setenv("STATEHUB_SCAN_INTERVAL", "250ms")
	t.Setenv("STATEHUB_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/hub.db", cfg.DB)
	assert.Equal(t, "acme", cfg.Tenant)
	assert.Equal(t, int64(7), cfg.CheckpointThreshold)
	assert.False(t, cfg.UseCheckpoint)

	wf := cfg.WorkflowConfig(workflowConfigStub())
	assert.Equal(t, 250*time.Millisecond, wf.ScanInterval)
	assert.Equal(t, "factory", wf.Store)

	opts := cfg.ConnOptions(nil, nil)
	assert.Equal(t, "acme", opts.Tenant)
	assert.Equal(t, 200*time.Millisecond, opts.TailInterval)
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("STATEHUB_CHECKPOINT_THRESHOLD", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"), "got %v", err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		t.Helper()
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty db", func(c *Config) { c.DB = " " }, "STATEHUB_DB"},
		{"zero scan interval", func(c *Config) { c.ScanInterval = 0 }, "STATEHUB_SCAN_INTERVAL"},
		{"max below initial poll", func(c *Config) { c.MaxPollInterval = time.Millisecond }, "below"},
		{"negative keep", func(c *Config) { c.CheckpointKeep = -1 }, "negative"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "STATEHUB_LOG_LEVEL"},
		{"bad synchronous", func(c *Config) { c.DBSynchronous = "sometimes" }, "STATEHUB_DB_SYNCHRONOUS"},
		{"zero busy timeout", func(c *Config) { c.DBBusyTimeout = 0 }, "STATEHUB_DB_BUSY_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStoreOptions(t *testing.T) {
	t.Setenv("STATEHUB_DB_SYNCHRONOUS", "full")
	t.Setenv("STATEHUB_DB_BUSY_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.DBBusyTimeout)
	assert.Len(t, cfg.StoreOptions(), 2)
}

func workflowConfigStub() workflow.Config {
	return workflow.Config{Store: "factory"}
}
