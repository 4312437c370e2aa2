package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Ошибки валидации конфигурации.
var (
	ErrNoKeywords           = errors.New("at least one keyword is required")
	ErrFeedMissingURL       = errors.New("every feed needs a url")
	ErrInvalidTimeout       = errors.New("fetch.timeout must be positive")
	ErrInvalidWindow        = errors.New("fetch.window_hours must be at least 1")
	ErrInvalidDigestSize    = errors.New("digest.max_articles must be at least 1")
	ErrInvalidRetention     = errors.New("retention_days must be at least 1")
	ErrInvalidMaxAttempts   = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidBaseDelay     = errors.New("retry.base_delay must be non-negative")
	ErrUnknownStorageDriver = errors.New("storage.driver must be 'json' or 'sqlite'")
	ErrMissingStoragePath   = errors.New("storage.path is required")
)

// Поддерживаемые драйверы хранилища отправленных новостей.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

type (
	// Root объединяет все конфигурационные блоки.
	Root struct {
		Keywords      []string `yaml:"keywords" toml:"keywords"`
		Feeds         []Feed   `yaml:"feeds" toml:"feeds"`
		Timezone      string   `yaml:"timezone" toml:"timezone"`
		Storage       Storage  `yaml:"storage" toml:"storage"`
		Fetch         Fetch    `yaml:"fetch" toml:"fetch"`
		Digest        Digest   `yaml:"digest" toml:"digest"`
		RetentionDays int      `yaml:"retention_days" toml:"retention_days"`
		Retry         Retry    `yaml:"retry" toml:"retry"`
		Gemini        Gemini   `yaml:"gemini" toml:"gemini"`
		// Schedule задаёт cron-выражение для команды schedule.
		Schedule string `yaml:"schedule" toml:"schedule"`
	}

	// Feed описывает один RSS-источник. Порядок в списке задаёт приоритет при дедупликации.
	Feed struct {
		Name string `yaml:"name" toml:"name"`
		URL  string `yaml:"url" toml:"url"`
	}

	// Storage описывает, где хранятся отправленные новости.
	Storage struct {
		Driver string `yaml:"driver" toml:"driver"`
		Path   string `yaml:"path" toml:"path"`
	}

	// Fetch содержит параметры загрузки источников.
	Fetch struct {
		Timeout     Duration `yaml:"timeout" toml:"timeout"`
		WindowHours int      `yaml:"window_hours" toml:"window_hours"`
		UserAgent   string   `yaml:"user_agent" toml:"user_agent"`
	}

	// Digest управляет размером и заголовком дайджеста.
	Digest struct {
		MaxArticles int    `yaml:"max_articles" toml:"max_articles"`
		Title       string `yaml:"title" toml:"title"`
	}

	// Retry задаёт политику повторов при отправке в Telegram.
	Retry struct {
		MaxAttempts int      `yaml:"max_attempts" toml:"max_attempts"`
		BaseDelay   Duration `yaml:"base_delay" toml:"base_delay"`
	}

	// Gemini включает краткие сводки к новостям дайджеста.
	Gemini struct {
		Enabled bool   `yaml:"enabled" toml:"enabled"`
		Model   string `yaml:"model" toml:"model"`
	}
)

// Duration позволяет писать в конфиге "10s" или "1m30s".
type Duration time.Duration

// Std возвращает значение как time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML реализует yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

// UnmarshalText используется декодером TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

func (d *Duration) parse(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default возвращает конфигурацию исходного развёртывания.
func Default() Root {
	return Root{
		Keywords: []string{
			"OpenAI",
			"Anthropic",
			"Gemini AI",
			"AI agents",
			"agentic AI",
			"agentic commerce",
			"agentic payments",
			"financial agents",
			"agent protocol",
			"agent SDK",
		},
		Feeds: []Feed{
			{Name: "VentureBeat", URL: "https://venturebeat.com/feed/"},
			{Name: "MIT Tech Review", URL: "https://www.technologyreview.com/feed/"},
			{Name: "Ars Technica", URL: "https://feeds.arstechnica.com/arstechnica/index"},
		},
		Timezone: "America/Lima",
		Storage: Storage{
			Driver: DriverJSON,
			Path:   "data/sent_articles.json",
		},
		Fetch: Fetch{
			Timeout:     Duration(10 * time.Second),
			WindowHours: 8,
			UserAgent:   "ai-news-alerts/1.0 (+https://github.com/maine/ai_news_alerts)",
		},
		Digest: Digest{
			MaxArticles: 5,
			Title:       "AI News Digest",
		},
		RetentionDays: 30,
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   Duration(time.Second),
		},
		Gemini: Gemini{
			Model: "gemini-2.0-flash",
		},
		Schedule: "0 */8 * * *",
	}
}

// Load читает файл конфигурации поверх значений по умолчанию.
// Формат определяется расширением: .toml означает TOML, всё остальное YAML.
// Отсутствующий файл не ошибка: используется Default().
func Load(path string) (Root, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Root{}, fmt.Errorf("read config: %w", err)
	}

	// Списки из файла полностью заменяют значения по умолчанию.
	var override Root
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &override); err != nil {
			return Root{}, fmt.Errorf("unmarshal toml config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &override); err != nil {
			return Root{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.merge(override)
	return cfg, nil
}

func (c *Root) merge(o Root) {
	if len(o.Keywords) > 0 {
		c.Keywords = o.Keywords
	}
	if len(o.Feeds) > 0 {
		c.Feeds = o.Feeds
	}
	if o.Timezone != "" {
		c.Timezone = o.Timezone
	}
	if o.Storage.Driver != "" {
		c.Storage.Driver = o.Storage.Driver
	}
	if o.Storage.Path != "" {
		c.Storage.Path = o.Storage.Path
	}
	if o.Fetch.Timeout != 0 {
		c.Fetch.Timeout = o.Fetch.Timeout
	}
	if o.Fetch.WindowHours != 0 {
		c.Fetch.WindowHours = o.Fetch.WindowHours
	}
	if o.Fetch.UserAgent != "" {
		c.Fetch.UserAgent = o.Fetch.UserAgent
	}
	if o.Digest.MaxArticles != 0 {
		c.Digest.MaxArticles = o.Digest.MaxArticles
	}
	if o.Digest.Title != "" {
		c.Digest.Title = o.Digest.Title
	}
	if o.RetentionDays != 0 {
		c.RetentionDays = o.RetentionDays
	}
	if o.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = o.Retry.MaxAttempts
	}
	if o.Retry.BaseDelay != 0 {
		c.Retry.BaseDelay = o.Retry.BaseDelay
	}
	if o.Gemini.Enabled {
		c.Gemini.Enabled = true
	}
	if o.Gemini.Model != "" {
		c.Gemini.Model = o.Gemini.Model
	}
	if o.Schedule != "" {
		c.Schedule = o.Schedule
	}
}

// Validate проверяет согласованность конфигурации.
func (c Root) Validate() error {
	keywords := 0
	for _, kw := range c.Keywords {
		if strings.TrimSpace(kw) != "" {
			keywords++
		}
	}
	if keywords == 0 {
		return ErrNoKeywords
	}
	for _, feed := range c.Feeds {
		if strings.TrimSpace(feed.URL) == "" {
			return fmt.Errorf("feed %q: %w", feed.Name, ErrFeedMissingURL)
		}
	}
	if c.Fetch.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Fetch.WindowHours < 1 {
		return ErrInvalidWindow
	}
	if c.Digest.MaxArticles < 1 {
		return ErrInvalidDigestSize
	}
	if c.RetentionDays < 1 {
		return ErrInvalidRetention
	}
	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.Retry.BaseDelay < 0 {
		return ErrInvalidBaseDelay
	}
	switch c.Storage.Driver {
	case DriverJSON, DriverSQLite:
	default:
		return ErrUnknownStorageDriver
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return ErrMissingStoragePath
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location возвращает часовой пояс для заголовка дайджеста.
func (c Root) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Window возвращает окно свежести новостей.
func (c Root) Window() time.Duration {
	return time.Duration(c.Fetch.WindowHours) * time.Hour
}
