package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sidecar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.Interval)
	assert.Equal(t, 30, cfg.Discovery.MaxAttempts)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, `
worker:
  port_file: /tmp/custom.port
  shutdown_timeout: 2s
host:
  command: ./bin/worker
  args: [serve, --quiet]
discovery:
  interval: 250ms
  max_attempts: 10
  mode: file
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.port", cfg.Worker.PortFile)
	assert.Equal(t, 2*time.Second, cfg.Worker.ShutdownTimeout)
	assert.Equal(t, "127.0.0.1:0", cfg.Worker.Address, "unset keys keep their defaults")
	assert.Equal(t, "./bin/worker", cfg.Host.Command)
	assert.Equal(t, []string{"serve", "--quiet"}, cfg.Host.Args)
	assert.Equal(t, 250*time.Millisecond, cfg.Discovery.Interval)
	assert.Equal(t, 10, cfg.Discovery.MaxAttempts)
	assert.Equal(t, ModeFile, cfg.Discovery.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
discovery:
  interval: 250ms
`)
	t.Setenv("SIDECAR_DISCOVERY_INTERVAL", "1s")
	t.Setenv("SIDECAR_DISCOVERY_MAX_ATTEMPTS", "5")
	t.Setenv("SIDECAR_HOST_ARGS", "worker,--log-level,debug")
	t.Setenv("SIDECAR_WORKER_METRICS", "false")
	t.Setenv("SIDECAR_REDIS_ADDRESS", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Discovery.Interval)
	assert.Equal(t, 5, cfg.Discovery.MaxAttempts)
	assert.Equal(t, []string{"worker", "--log-level", "debug"}, cfg.Host.Args)
	assert.False(t, cfg.Worker.Metrics)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeFile(t, "worker: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "worker:\n  adress: typo\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Load(writeFile(t, "discovery:\n  interval: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Discovery.Interval = 0 }},
		{"zero attempts", func(c *Config) { c.Discovery.MaxAttempts = 0 }},
		{"unknown mode", func(c *Config) { c.Discovery.Mode = "carrier-pigeon" }},
		{"redis without address", func(c *Config) { c.Discovery.Mode = ModeRedis }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"zero stop timeout", func(c *Config) { c.Host.StopTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := Default()
	cfg.Discovery.Mode = ModeRedis
	cfg.Redis.Address = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}
