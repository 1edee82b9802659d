package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
log_level = "DEBUG"

[server]
addr = ":9000"

[rate_limit]
max_requests = 50
window_ms = 30000

[rate_limit.events.send_message]
max_requests = 10
window_ms = 10000

[rooms]
reserved_prefixes = ["system:", "announcements"]
retention_hours = 48
cleanup_spec = "@every 1m"

[backend]
type = "redis"
addr = "localhost:6379"
db = 2

[[oidc]]
name = "example"
client_id = "client123"
provider_url = "https://accounts.example.com"

[persistence]
type = "sqlite"
dsn = "presence.db"
`

func writeConfig(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestReadConfigurationFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.toml", testConfig)

	cfg, err := ReadConfiguration(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.ServerConfig.Addr)
	assert.Equal(t, 50, cfg.RateLimitConfig.MaxRequests)
	assert.Equal(t, 30000, cfg.RateLimitConfig.WindowMs)
	require.Contains(t, cfg.RateLimitConfig.EventLimits, "send_message")
	assert.Equal(t, 10, cfg.RateLimitConfig.EventLimits["send_message"].MaxRequests)
	assert.Equal(t, []string{"system:", "announcements"}, cfg.RoomConfig.ReservedPrefixes)
	assert.Equal(t, 48, cfg.RoomConfig.RetentionHours)
	assert.Equal(t, "@every 1m", cfg.RoomConfig.CleanupSpec)
	assert.Equal(t, "redis", cfg.BackendConfig.Type)
	assert.Equal(t, 2, cfg.BackendConfig.DB)
	require.Len(t, cfg.OIDCConfigs, 1)
	assert.Equal(t, "example", cfg.OIDCConfigs[0].Name)
	assert.Equal(t, "sqlite", cfg.PersistenceConfig.Type)
}

func TestReadConfigurationDefaults(t *testing.T) {
	cfg, err := ReadConfiguration("", nil)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "localhost:8000", cfg.ServerConfig.Addr)
	assert.Equal(t, "local", cfg.BackendConfig.Type)
	assert.Equal(t, 100, cfg.RateLimitConfig.GlobalMax())
	assert.Equal(t, time.Minute, cfg.RateLimitConfig.GlobalWindow())
	assert.Equal(t, 24*time.Hour, cfg.RoomConfig.Retention())
	assert.Equal(t, "@every 5m", cfg.RoomConfig.CleanupSpec)
}

func TestReadConfigurationDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "10-server.toml", "[server]\naddr = \":7000\"\n")
	writeConfig(t, dir, "20-rooms.toml", "[rooms]\nretention_hours = 1\n")

	cfg, err := ReadConfiguration(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ServerConfig.Addr)
	assert.Equal(t, time.Hour, cfg.RoomConfig.Retention())
}

func TestReadConfigurationMissingPath(t *testing.T) {
	_, err := ReadConfiguration(filepath.Join(t.TempDir(), "nope.toml"), nil)
	assert.Error(t, err)
}

func TestRateLimitAccessorsIgnoreInvalidValues(t *testing.T) {
	c := RateLimitConfig{MaxRequests: -1, WindowMs: 0}
	assert.Equal(t, 100, c.GlobalMax())
	assert.Equal(t, time.Minute, c.GlobalWindow())
}
