package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Point at an empty directory so no stray config.yaml is picked up.
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "config.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "file:chatbot.db?cache=shared&mode=rwc", cfg.Database.DSN)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 30, cfg.RateLimit.Limit)
	assert.Equal(t, 60, cfg.RateLimit.WindowSeconds)
	assert.Equal(t, "rate_limit", cfg.RateLimit.KeyPrefix)
	assert.Equal(t, 10, cfg.Chat.ContextSize)
	assert.Equal(t, "https://api.openai.com", cfg.OpenAI.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 3*time.Second, cfg.OpenAI.ConnectTimeout())
	assert.Equal(t, 30*time.Second, cfg.OpenAI.ResponseTimeout())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
rate_limit:
  enabled: false
  limit: 5
chat:
  context_size: 4
openai:
  base_url: http://localhost:9999
  model: test-model
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, 4, cfg.Chat.ContextSize)
	assert.Equal(t, "http://localhost:9999", cfg.OpenAI.BaseURL)
	assert.Equal(t, "test-model", cfg.OpenAI.Model)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 60, cfg.RateLimit.WindowSeconds)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("CHATBOT_SERVER_PORT", "7070")
	t.Setenv("CHATBOT_OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}
