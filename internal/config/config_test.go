package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(content), 0o644))
	return dir
}

func TestLoadConfigSnakeCaseKeys(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
  read_timeout: 15s
  write_timeout: 20s
  request_timeout: 25s
  rate_limit: 50
  rate_burst: 75

dispatch:
  from_address: noreply@example.com
  from_name: Notify

worker:
  batch_size: 10
  poll_interval: 2s
  retry_interval: 3m
  max_attempts: 7
  retry_backoff: 45s
  retry_window: 12h

auth:
  secret: s3cret
  token_expiry: 8h
`)

	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 20*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 25*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 50.0, cfg.Server.RateLimit)
	assert.Equal(t, 75, cfg.Server.RateBurst)

	assert.Equal(t, "noreply@example.com", cfg.Dispatch.FromAddress)
	assert.Equal(t, "Notify", cfg.Dispatch.FromName)

	assert.Equal(t, 10, cfg.Worker.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 3*time.Minute, cfg.Worker.RetryInterval)
	assert.Equal(t, 7, cfg.Worker.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Worker.RetryBackoff)
	assert.Equal(t, 12*time.Hour, cfg.Worker.RetryWindow)

	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, 8*time.Hour, cfg.Auth.TokenExpiry)
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
database:
  host: localhost
`)

	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 50, cfg.Worker.BatchSize)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := writeConfig(t, `
database:
  password: from-file
auth:
  secret: from-file
`)

	t.Setenv("NOTIFY_DB_PASSWORD", "from-env")
	t.Setenv("NOTIFY_AUTH_SECRET", "env-secret")

	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "env-secret", cfg.Auth.Secret)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfigFrom(t.TempDir())
	assert.Error(t, err)
}
