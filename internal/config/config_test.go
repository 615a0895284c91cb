package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 18650, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, 30, cfg.Queue.TickSeconds)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, 5, cfg.Queue.NotifyMinutes)
	assert.Equal(t, 300, cfg.Queue.AvgChatSeconds)
	assert.NotEmpty(t, cfg.Chat.WelcomeMessage)
	assert.NotEmpty(t, cfg.Chat.HandoffMessage)
	assert.Empty(t, Validate(&cfg))
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Gateway.Port, cfg.Gateway.Port)
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
gateway:
  port: 9000
queue:
  tickSeconds: 5
chat:
  welcomeMessage: "Oi!"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, 5, cfg.Queue.TickSeconds)
	assert.Equal(t, "Oi!", cfg.Chat.WelcomeMessage)
	// untouched fields keep defaults
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.NotEmpty(t, cfg.Chat.HandoffMessage)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ATENDECHAT_PORT", "7777")
	t.Setenv("ATENDECHAT_LOG_LEVEL", "DEBUG")
	t.Setenv("ATENDECHAT_DB", ":memory:")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Gateway.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":memory:", cfg.Store.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"bad port", func(c *Config) { c.Gateway.Port = 0 }, "gateway.port"},
		{"bad bind", func(c *Config) { c.Gateway.Bind = "everywhere" }, "gateway.bind"},
		{"custom without host", func(c *Config) { c.Gateway.Bind = "custom" }, "gateway.customBindHost"},
		{"zero tick", func(c *Config) { c.Queue.TickSeconds = 0 }, "queue.tickSeconds"},
		{"zero batch", func(c *Config) { c.Queue.BatchSize = -1 }, "queue.batchSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.NotEmpty(t, issues)
			found := false
			for _, is := range issues {
				if is.Path == tt.path {
					found = true
				}
			}
			assert.True(t, found, "expected issue at %s, got %+v", tt.path, issues)
		})
	}
}
