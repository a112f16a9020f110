package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Engine.RepairTail)
	assert.False(t, cfg.Engine.StrictRecovery)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Engine, cfg.Engine)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
logger:
  level: debug
  json: true
server:
  grpc_addr: 127.0.0.1:6000
engine:
  data_dir: /var/lib/lumenkv
  strict_recovery: true
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Logger.JSON)
	assert.Equal(t, "127.0.0.1:6000", cfg.Server.GRPCAddr)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/var/lib/lumenkv", cfg.Engine.DataDir)
	assert.True(t, cfg.Engine.StrictRecovery)
	assert.True(t, cfg.Engine.RepairTail)
	assert.Equal(t, 64<<10, cfg.Engine.MaxKeyBytes)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  data_dir: /from/file\n"), 0600))

	t.Setenv(EnvDataDir, "/from/env")
	t.Setenv(EnvBindAddr, "0.0.0.0:7000")
	t.Setenv(EnvHTTPAddr, ":9090")
	t.Setenv(EnvLogLevel, "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Engine.DataDir)
	assert.Equal(t, "0.0.0.0:7000", cfg.Server.GRPCAddr)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	level, err := cfg.Logger.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [unterminated"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown level", func(c *Config) { c.Logger.Level = "loud" }},
		{"empty data dir", func(c *Config) { c.Engine.DataDir = "" }},
		{"zero key limit", func(c *Config) { c.Engine.MaxKeyBytes = 0 }},
		{"negative value limit", func(c *Config) { c.Engine.MaxValueBytes = -1 }},
		{"no listeners", func(c *Config) { c.Server.HTTPAddr, c.Server.GRPCAddr = "", "" }},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"tracing without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Endpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
