package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, BackendFile, cfg.Credential.Backend)
	assert.Equal(t, DefaultListen, cfg.Gateway.Listen)
	assert.Equal(t, 30*time.Second, cfg.Gateway.CacheTTL)
	assert.Equal(t, DefaultAuditBackups, cfg.Audit.MaxBackups)
	assert.False(t, cfg.Tunnel.Enabled())
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
}

func TestLoad_Values(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	path := writeConfig(t, `
api:
  base_url: https://inventory.example.net/api/noah/
  timeout_seconds: 5
credential:
  backend: redis
  redis_addr: 127.0.0.1:6379
  redis_db: 2
gateway:
  listen: 0.0.0.0:9000
  rate_limit_per_sec: 2.5
  burst: 1
audit:
  max_size_mb: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://inventory.example.net/api/noah", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, BackendRedis, cfg.Credential.Backend)
	assert.Equal(t, 2, cfg.Credential.RedisDB)
	assert.Equal(t, DefaultRedisKey, cfg.Credential.RedisKey)
	assert.Equal(t, "0.0.0.0:9000", cfg.Gateway.Listen)
	assert.Equal(t, 2.5, cfg.Gateway.RateLimitPerSec)
	assert.Equal(t, 1, cfg.Gateway.Burst)
	assert.Equal(t, 1, cfg.Audit.MaxSizeMB)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv(BaseURLEnv, "http://localhost:8000/api/noah///")
	cfg, err := Load(writeConfig(t, "api:\n  base_url: http://ignored/api\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api/noah", cfg.API.BaseURL)
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "api:\n  base_ur1: http://typo\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad scheme", "api:\n  base_url: ftp://host/api\n", "api.base_url"},
		{"redis without addr", "credential:\n  backend: redis\n", "redis_addr"},
		{"unknown backend", "credential:\n  backend: vault\n", "credential.backend"},
		{"tunnel without user", "tunnel:\n  host: bastion:22\n", "tunnel.user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Gateway.Listen = "127.0.0.1:9999"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", loaded.Gateway.Listen)
	assert.Equal(t, cfg.API.BaseURL, loaded.API.BaseURL)
}
