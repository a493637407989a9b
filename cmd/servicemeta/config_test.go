package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	// Clear environment
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "data/servicemeta.db", cfg.Database.DSN)
	assert.Equal(t, "data/tasks", cfg.Data.TasksDir())
	assert.True(t, cfg.Docker.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "./services", cfg.Services.Dir)
	assert.Equal(t, 2*time.Second, cfg.Services.ScriptTimeout)
	assert.Equal(t, 2, cfg.Workers.Count)
	assert.Equal(t, 64, cfg.Workers.QueueSize)
	assert.Equal(t, 10*time.Minute, cfg.Launch.Timeout)
	assert.False(t, cfg.Launch.KeepWorkdirs)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	// Create temp config file
	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s
  write_timeout: 60s
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

docker:
  enabled: false

log:
  level: "debug"
  format: "text"

services:
  dir: "/opt/services"

workers:
  count: 4
  queue_size: 10

launch:
  timeout: 90s
  keep_workdirs: true
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.False(t, cfg.Docker.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/opt/services", cfg.Services.Dir)
	assert.Equal(t, 4, cfg.Workers.Count)
	assert.Equal(t, 10, cfg.Workers.QueueSize)
	assert.Equal(t, 90*time.Second, cfg.Launch.Timeout)
	assert.True(t, cfg.Launch.KeepWorkdirs)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	// Set environment variables
	t.Setenv("SERVICEMETA_SERVER_HOST", "192.168.1.1")
	t.Setenv("SERVICEMETA_SERVER_PORT", "3000")
	t.Setenv("SERVICEMETA_DATABASE_DSN", "/custom/path.db")
	t.Setenv("SERVICEMETA_LOG_LEVEL", "warn")
	t.Setenv("SERVICEMETA_LOG_FORMAT", "text")
	t.Setenv("SERVICEMETA_DOCKER_ENABLED", "false")
	t.Setenv("SERVICEMETA_WORKERS_COUNT", "8")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Docker.Enabled)
	assert.Equal(t, 8, cfg.Workers.Count)
}

func TestLoadConfig_DataDirDerivesDSN(t *testing.T) {
	clearEnv(t)

	t.Setenv("SERVICEMETA_DATA_DIR", "/var/lib/servicemeta")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/servicemeta/servicemeta.db", cfg.Database.DSN)
	assert.Equal(t, "/var/lib/servicemeta/tasks", cfg.Data.TasksDir())
}

func TestLoadConfig_ExplicitDSNOverridesDataDir(t *testing.T) {
	clearEnv(t)

	t.Setenv("SERVICEMETA_DATA_DIR", "/var/lib/servicemeta")
	t.Setenv("SERVICEMETA_DATABASE_DSN", "/custom/path.db")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err) // Should not error, just use defaults

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	// Create invalid config file
	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level  string
		format string
	}{
		{"info", "json"},
		{"info", "text"},
		{"debug", "json"},
		{"warn", "json"},
		{"error", "json"},
		{"invalid", "json"}, // falls back to info
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger := SetupLogger(&Config{Log: LogConfig{Level: tt.level, Format: tt.format}})
			assert.NotNil(t, logger)
		})
	}
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"SERVICEMETA_SERVER_HOST",
		"SERVICEMETA_SERVER_PORT",
		"SERVICEMETA_DATABASE_DSN",
		"SERVICEMETA_DATA_DIR",
		"SERVICEMETA_DOCKER_ENABLED",
		"SERVICEMETA_LOG_LEVEL",
		"SERVICEMETA_LOG_FORMAT",
		"SERVICEMETA_SERVICES_DIR",
		"SERVICEMETA_WORKERS_COUNT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
