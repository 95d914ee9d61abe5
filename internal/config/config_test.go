package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Engine.PollIntervalSeconds)
	assert.Equal(t, 5, cfg.Engine.RetryCeiling)
	assert.True(t, cfg.Logging.RedactPII, "PII redaction should default on")
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
engine:
  poll_interval_seconds: 5
  retry_ceiling: 3
transport:
  base_url: "https://delivery.internal"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Engine.PollIntervalSeconds)
	assert.Equal(t, "https://delivery.internal", cfg.Transport.BaseURL)
	// Unset keys keep their defaults.
	assert.Equal(t, 50, cfg.Engine.ClaimBatchSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-host/outreach")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("ENGINE_POLL_SECONDS", "3")
	t.Setenv("TRANSPORT_API_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/outreach", cfg.Database.URL)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Engine.PollIntervalSeconds)
	assert.Equal(t, "secret", cfg.Transport.APIKey)
}

func TestAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 9000}
	assert.Equal(t, "127.0.0.1:9000", s.Addr())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty database url", func(c *Config) { c.Database.URL = "" }, true},
		{"zero poll interval", func(c *Config) { c.Engine.PollIntervalSeconds = 0 }, true},
		{"zero claim batch", func(c *Config) { c.Engine.ClaimBatchSize = 0 }, true},
		{"retry ceiling below one", func(c *Config) { c.Engine.RetryCeiling = 0 }, true},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
