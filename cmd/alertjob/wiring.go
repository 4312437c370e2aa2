package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maine/ai_news_alerts/internal/app"
	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/formatter"
	"github.com/maine/ai_news_alerts/internal/gemini"
	"github.com/maine/ai_news_alerts/internal/matcher"
	"github.com/maine/ai_news_alerts/internal/metrics"
	"github.com/maine/ai_news_alerts/internal/news"
	"github.com/maine/ai_news_alerts/internal/sources"
	"github.com/maine/ai_news_alerts/internal/state"
	"github.com/maine/ai_news_alerts/internal/telegram"
)

// components собирает модули одного процесса.
type components struct {
	cfg       config.Root
	env       config.EnvConfig
	tracker   state.Tracker
	formatter *formatter.Formatter
	notifier  *telegram.Notifier
	pipeline  *app.Pipeline
	metrics   *metrics.Recorder

	// metricsPath пуст, если показатели не записываются.
	metricsPath string
}

func loadConfig(path string) (config.Root, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Root{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Root{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func buildComponents(ctx context.Context, configPath, metricsPath string) (*components, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	env := config.LoadEnvConfig()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	log.Info("Initializing components...")

	tracker, err := state.Open(ctx, cfg.Storage, time.Now)
	if err != nil {
		return nil, fmt.Errorf("open tracker: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Fetch.Timeout.Std()}
	aggregator := sources.NewAggregator(sources.AggregatorDeps{
		Feeds:    cfg.Feeds,
		Keywords: cfg.Keywords,
		Window:   cfg.Window(),
		RSS:      sources.NewRSSCollector(httpClient, cfg.Fetch.UserAgent, time.Now),
		Search:   sources.NewNewsAPIClient(env.NewsAPIKey, "", httpClient, time.Now),
		Clock:    time.Now,
	})

	digestFormatter := formatter.NewFormatter(cfg.Digest, loc, time.Now)
	notifier := newNotifier(env, digestFormatter, telegram.PolicyFromConfig(cfg.Retry))

	var summarizer app.Summarizer
	if cfg.Gemini.Enabled {
		client, err := gemini.NewClient(ctx, env.GeminiAPIKey)
		if err != nil {
			log.WithError(err).Warn("Gemini summaries disabled")
		} else {
			summarizer = gemini.NewSummarizer(client, cfg.Gemini)
		}
	}

	keywordMatcher := matcher.New(cfg.Keywords)
	log.WithField("keywords", keywordMatcher.Keywords()).Info("Keyword matcher ready")

	pipeline := app.NewPipeline(app.PipelineDeps{
		Collector:     aggregator,
		Matcher:       keywordMatcher,
		Tracker:       tracker,
		Notifier:      notifier,
		Fitter:        digestFormatter,
		Summarizer:    summarizer,
		MaxArticles:   cfg.Digest.MaxArticles,
		RetentionDays: cfg.RetentionDays,
		Clock:         time.Now,
	})

	return &components{
		cfg:       cfg,
		env:       env,
		tracker:   tracker,
		formatter: digestFormatter,
		notifier:  notifier,
		pipeline:  pipeline,
		metrics:   metrics.New(),

		metricsPath: metricsPath,
	}, nil
}

func newNotifier(env config.EnvConfig, f *formatter.Formatter, policy telegram.RetryPolicy) *telegram.Notifier {
	var client telegram.TelegramClient
	if env.TelegramConfigured() {
		client = telegram.NewClient(env.TelegramBotToken, "")
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set, notifications disabled")
	}
	return telegram.NewNotifier(telegram.NotifierDeps{
		Client:    client,
		ChatID:    env.TelegramChatID,
		Formatter: f,
		Policy:    policy,
	})
}

// observe учитывает итоги запуска и, если задан файл, сохраняет показатели.
func (c *components) observe(report news.RunReport, runErr error, started time.Time) {
	now := time.Now()
	c.metrics.Observe(report, runErr, now.Sub(started), now)
	if c.metricsPath == "" {
		return
	}
	if err := c.metrics.WriteTextfile(c.metricsPath); err != nil {
		log.WithError(err).WithField("path", c.metricsPath).Warn("Failed to write metrics file")
	}
}

func (c *components) Close() {
	if err := c.tracker.Close(); err != nil {
		log.WithError(err).Warn("Failed to close tracker")
	}
}

// sendFailureAlert отправляет уведомление об аварийном завершении.
// Ошибка отправки не влияет на код выхода.
func sendFailureAlert(notifier *telegram.Notifier, runErr error) {
	if notifier == nil {
		notifier = newNotifier(config.LoadEnvConfig(), nil, telegram.RetryPolicy{})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	notifier.SendErrorAlert(ctx, fmt.Sprintf("Critical error: %v", runErr))
}
