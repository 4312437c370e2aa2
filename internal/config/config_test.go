package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout.Std())
	assert.Equal(t, 8, cfg.Fetch.WindowHours)
	assert.Equal(t, 5, cfg.Digest.MaxArticles)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, DriverJSON, cfg.Storage.Driver)
	assert.Contains(t, cfg.Keywords, "OpenAI")
	assert.Len(t, cfg.Feeds, 3)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "alerts.yaml", `
keywords: ["Mistral", "LLM"]
feeds:
  - name: Example
    url: https://example.com/rss
timezone: UTC
storage:
  driver: sqlite
  path: data/sent.db
fetch:
  timeout: 3s
  window_hours: 12
digest:
  max_articles: 7
retention_days: 14
retry:
  max_attempts: 5
  base_delay: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Mistral", "LLM"}, cfg.Keywords)
	assert.Equal(t, []Feed{{Name: "Example", URL: "https://example.com/rss"}}, cfg.Feeds)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "data/sent.db", cfg.Storage.Path)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout.Std())
	assert.Equal(t, 12*time.Hour, cfg.Window())
	assert.Equal(t, 7, cfg.Digest.MaxArticles)
	assert.Equal(t, "AI News Digest", cfg.Digest.Title)
	assert.Equal(t, 14, cfg.RetentionDays)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay.Std())
	require.NoError(t, cfg.Validate())
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "alerts.toml", `
keywords = ["OpenAI"]
timezone = "Europe/Berlin"
retention_days = 10

[[feeds]]
name = "One"
url = "https://one.example/feed"

[[feeds]]
name = "Two"
url = "https://two.example/feed"

[fetch]
timeout = "2s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"OpenAI"}, cfg.Keywords)
	require.Len(t, cfg.Feeds, 2)
	assert.Equal(t, "Two", cfg.Feeds[1].Name)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, 10, cfg.RetentionDays)
	assert.Equal(t, 2*time.Second, cfg.Fetch.Timeout.Std())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "broken.yaml", "keywords: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeFile(t, "bad.yaml", "fetch:\n  timeout: soon\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Root)
		want   error
	}{
		{name: "defaults are valid", mutate: func(*Root) {}},
		{name: "blank keywords", mutate: func(c *Root) { c.Keywords = []string{" ", ""} }, want: ErrNoKeywords},
		{name: "feed without url", mutate: func(c *Root) { c.Feeds = []Feed{{Name: "x"}} }, want: ErrFeedMissingURL},
		{name: "zero timeout", mutate: func(c *Root) { c.Fetch.Timeout = 0 }, want: ErrInvalidTimeout},
		{name: "zero window", mutate: func(c *Root) { c.Fetch.WindowHours = 0 }, want: ErrInvalidWindow},
		{name: "zero digest", mutate: func(c *Root) { c.Digest.MaxArticles = 0 }, want: ErrInvalidDigestSize},
		{name: "zero retention", mutate: func(c *Root) { c.RetentionDays = 0 }, want: ErrInvalidRetention},
		{name: "zero attempts", mutate: func(c *Root) { c.Retry.MaxAttempts = 0 }, want: ErrInvalidMaxAttempts},
		{name: "negative delay", mutate: func(c *Root) { c.Retry.BaseDelay = Duration(-time.Second) }, want: ErrInvalidBaseDelay},
		{name: "unknown driver", mutate: func(c *Root) { c.Storage.Driver = "redis" }, want: ErrUnknownStorageDriver},
		{name: "empty path", mutate: func(c *Root) { c.Storage.Path = "" }, want: ErrMissingStoragePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidate_BadTimezone(t *testing.T) {
	cfg := Default()
	cfg.Timezone = "Mars/Olympus_Mons"
	assert.Error(t, cfg.Validate())
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", " token ")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("NEWSAPI_KEY", "")
	t.Setenv("GEMINI_API_KEY", "g")

	env := LoadEnvConfig()
	assert.Equal(t, "token", env.TelegramBotToken)
	assert.Equal(t, "42", env.TelegramChatID)
	assert.Empty(t, env.NewsAPIKey)
	assert.Equal(t, "g", env.GeminiAPIKey)
	assert.True(t, env.TelegramConfigured())

	t.Setenv("TELEGRAM_CHAT_ID", "")
	assert.False(t, LoadEnvConfig().TelegramConfigured())
}
