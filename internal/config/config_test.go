package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Valid(t *testing.T) {
	t.Setenv("DATABASES_FILE", "/etc/parallax/databases.yaml")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "/etc/parallax/databases.yaml", cfg.DatabasesFile)
	assert.Equal(t, 5*time.Minute, cfg.QueryTimeout)
	assert.Equal(t, 5*time.Minute, cfg.MaxExecutionTime)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.False(t, cfg.AllowSafetyOverride)
}

func TestLoad_MissingDatabasesFile(t *testing.T) {
	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASES_FILE")
}

func TestLoad_EnvVars(t *testing.T) {
	t.Setenv("DATABASES_FILE", "/tmp/dbs.yaml")
	t.Setenv("QUERY_TIMEOUT", "2m")
	t.Setenv("MAX_EXECUTION_TIME", "10m")
	t.Setenv("ALLOW_SAFETY_OVERRIDE", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AUDIT_LOG", "/var/log/parallax.ndjson")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.QueryTimeout)
	assert.Equal(t, 10*time.Minute, cfg.MaxExecutionTime)
	assert.True(t, cfg.AllowSafetyOverride)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "/var/log/parallax.ndjson", cfg.AuditLog)
}

func TestLoad_CLIOverridesWinOverEnv(t *testing.T) {
	t.Setenv("DATABASES_FILE", "/tmp/env.yaml")
	t.Setenv("QUERY_TIMEOUT", "2m")

	file := "/tmp/flag.yaml"
	timeout := 30 * time.Second
	cfg, err := Load(Overrides{
		DatabasesFile: &file,
		QueryTimeout:  &timeout,
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/flag.yaml", cfg.DatabasesFile)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
}

func TestLoad_InvalidQueryTimeout(t *testing.T) {
	t.Setenv("DATABASES_FILE", "/tmp/dbs.yaml")
	t.Setenv("QUERY_TIMEOUT", "not-a-duration")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_TIMEOUT")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("DATABASES_FILE", "/tmp/dbs.yaml")
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoad_InvalidTransport(t *testing.T) {
	t.Setenv("DATABASES_FILE", "/tmp/dbs.yaml")
	t.Setenv("TRANSPORT", "websocket")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRANSPORT")
}

func TestLoad_HTTPRequiresBearerToken(t *testing.T) {
	t.Setenv("DATABASES_FILE", "/tmp/dbs.yaml")
	t.Setenv("TRANSPORT", "http")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_BEARER_TOKEN")
}

func TestLoad_PoolBounds(t *testing.T) {
	t.Setenv("DATABASES_FILE", "/tmp/dbs.yaml")
	t.Setenv("POOL_MAX_CONNS", "2")
	t.Setenv("POOL_MIN_CONNS", "4")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POOL_MIN_CONNS")
}
