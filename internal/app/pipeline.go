package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	log "github.com/sirupsen/logrus"

	"github.com/maine/ai_news_alerts/internal/news"
)

const (
	// logTitleWidth - ширина заголовка в строках лога (в ячейках терминала)
	logTitleWidth        = 80
	defaultMaxArticles   = 5
	defaultRetentionDays = 30
)

// ErrNotConfigured возвращается, когда пайплайн запущен без обязательных зависимостей.
var ErrNotConfigured = errors.New("pipeline dependencies not configured")

// Clock определяет источник времени (удобно подменять в тестах).
type Clock func() time.Time

// SourceCollector агрегирует новости из подключённых источников.
type SourceCollector interface {
	Collect(ctx context.Context) ([]news.Article, error)
}

// Matcher оставляет новости, в которых встречаются ключевые слова.
type Matcher interface {
	Filter(articles []news.Article) []news.Article
	Stats(articles []news.Article) map[string]int
}

// Tracker помнит, какие новости уже отправлены.
type Tracker interface {
	IsSent(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, articles []news.Article, at time.Time) error
	Cleanup(ctx context.Context, retentionDays int) (int, error)
	Stats(ctx context.Context) (news.TrackerStats, error)
}

// Notifier доставляет дайджест. false означает, что дайджест не доставлен.
type Notifier interface {
	SendDigest(ctx context.Context, articles []news.Article, max int) bool
}

// DigestFitter сообщает, какие новости поместятся в одно сообщение.
type DigestFitter interface {
	Fit(articles []news.Article, max int) []news.Article
}

// Summarizer добавляет к новостям краткие сводки.
type Summarizer interface {
	Summarize(ctx context.Context, articles []news.Article) ([]news.Article, error)
}

// PipelineDeps перечисляет зависимости пайплайна.
// Fitter и Summarizer необязательны.
type PipelineDeps struct {
	Collector     SourceCollector
	Matcher       Matcher
	Tracker       Tracker
	Notifier      Notifier
	Fitter        DigestFitter
	Summarizer    Summarizer
	MaxArticles   int
	RetentionDays int
	Clock         Clock
	NewRunID      func() string
}

// Pipeline инкапсулирует один проход: сбор, отбор, доставка, учёт, очистка.
type Pipeline struct {
	collector     SourceCollector
	matcher       Matcher
	tracker       Tracker
	notifier      Notifier
	fitter        DigestFitter
	summarizer    Summarizer
	maxArticles   int
	retentionDays int
	clock         Clock
	newRunID      func() string
}

// NewPipeline создаёт новый экземпляр пайплайна.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newRunID := deps.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	maxArticles := deps.MaxArticles
	if maxArticles <= 0 {
		maxArticles = defaultMaxArticles
	}
	retentionDays := deps.RetentionDays
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	return &Pipeline{
		collector:     deps.Collector,
		matcher:       deps.Matcher,
		tracker:       deps.Tracker,
		notifier:      deps.Notifier,
		fitter:        deps.Fitter,
		summarizer:    deps.Summarizer,
		maxArticles:   maxArticles,
		retentionDays: retentionDays,
		clock:         clock,
		newRunID:      newRunID,
	}
}

// Run исполняет полный цикл обработки новостей.
// Пустой результат на любом шаге отбора считается успешным запуском без отправки.
// Неудачная доставка не ошибка: новости не отмечаются и уйдут в следующий раз.
func (p *Pipeline) Run(ctx context.Context) (news.RunReport, error) {
	report := news.RunReport{RunID: p.newRunID()}
	if err := p.validateDeps(); err != nil {
		return report, err
	}
	if p.notifier == nil {
		return report, ErrNotConfigured
	}

	logger := log.WithField("run_id", report.RunID)
	logger.Info("Starting AI news alerts check")

	digest, err := p.prepare(ctx, logger, &report)
	if err != nil || len(digest) == 0 {
		return report, err
	}

	logger.Info("Step 7: Sending Telegram digest...")
	delivered := p.notifier.SendDigest(ctx, digest, p.maxArticles)
	if delivered {
		logger.Info("Marking articles as sent...")
		if err := p.tracker.MarkSent(ctx, digest, p.clock()); err != nil {
			return report, fmt.Errorf("mark articles as sent: %w", err)
		}
		report.Delivered = true
		logger.WithField("count", len(digest)).Info("Successfully sent and tracked articles")
	} else {
		logger.Error("Failed to send Telegram notification - articles NOT marked as sent")
	}

	logger.WithField("days", p.retentionDays).Info("Step 8: Cleaning up old entries...")
	removed, err := p.tracker.Cleanup(ctx, p.retentionDays)
	if err != nil {
		logger.WithError(err).Error("Failed to clean up old entries")
		return report, fmt.Errorf("cleanup tracker: %w", err)
	}
	report.Pruned = removed
	if removed > 0 {
		logger.WithField("removed", removed).Info("Removed old entries")
	}

	logger.WithFields(log.Fields{
		"fetched":   report.Fetched,
		"matched":   report.Matched,
		"new":       report.New,
		"delivered": report.Delivered,
	}).Info("AI news alerts check completed")
	return report, nil
}

// Preview выполняет отбор без отправки и без записи в хранилище.
func (p *Pipeline) Preview(ctx context.Context) (news.RunReport, error) {
	report := news.RunReport{RunID: p.newRunID()}
	if err := p.validateDeps(); err != nil {
		return report, err
	}

	logger := log.WithFields(log.Fields{"run_id": report.RunID, "dry_run": true})
	_, err := p.prepare(ctx, logger, &report)
	return report, err
}

// prepare выполняет шаги 1-6 и возвращает дайджест к отправке (возможно пустой).
func (p *Pipeline) prepare(ctx context.Context, logger *log.Entry, report *news.RunReport) ([]news.Article, error) {
	logger.Info("Step 1: Loading storage stats...")
	if stats, err := p.tracker.Stats(ctx); err != nil {
		logger.WithError(err).Warn("Failed to load storage stats")
	} else {
		logger.WithField("total", stats.Total).Info("Storage stats loaded")
	}

	logger.Info("Step 2: Collecting articles from all sources...")
	articles, err := p.collector.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect articles: %w", err)
	}
	report.Fetched = len(articles)
	logger.WithField("count", len(articles)).Info("Fetched total articles")
	if len(articles) == 0 {
		logger.Info("No articles found from any source")
		return nil, nil
	}

	logger.Info("Step 3: Filtering articles by keywords...")
	matched := p.matcher.Filter(articles)
	report.Matched = len(matched)
	logger.WithField("count", len(matched)).Info("Found articles matching keywords")
	if len(matched) == 0 {
		logger.Info("No articles matched the configured keywords")
		return nil, nil
	}
	report.Keywords = p.matcher.Stats(matched)
	logger.WithField("keywords", report.Keywords).Info("Keyword match stats")

	logger.Info("Step 4: Checking for new articles...")
	fresh, err := p.dropSent(ctx, logger, matched)
	if err != nil {
		return nil, err
	}
	report.New = len(fresh)
	logger.WithField("count", len(fresh)).Info("Found new articles (not previously sent)")
	if len(fresh) == 0 {
		logger.Info("No new articles to send - all matching articles were already sent")
		return nil, nil
	}

	logger.Info("Step 5: Sorting by publication date...")
	sortNewestFirst(fresh)

	digest := fresh
	if len(digest) > p.maxArticles {
		digest = digest[:p.maxArticles]
	}

	if p.summarizer != nil {
		logger.Info("Summarizing digest articles...")
		summarized, err := p.summarizer.Summarize(ctx, digest)
		if err != nil {
			logger.WithError(err).Warn("Summaries unavailable, sending digest without them")
		} else if len(summarized) == len(digest) {
			digest = summarized
		}
	}

	if p.fitter != nil {
		digest = p.fitter.Fit(digest, p.maxArticles)
	}

	logger.WithField("count", len(digest)).Info("Step 6: Preparing digest")
	for idx, article := range digest {
		logger.WithFields(log.Fields{
			"source": article.Source,
			"url":    article.URL(),
		}).Infof("  %d. %s", idx+1, runewidth.Truncate(article.Title, logTitleWidth, "..."))
	}

	report.Digest = digest
	return digest, nil
}

// dropSent убирает уже отправленные новости.
// Ошибка проверки для отдельной новости не фатальна: новость считается неотправленной.
func (p *Pipeline) dropSent(ctx context.Context, logger *log.Entry, articles []news.Article) ([]news.Article, error) {
	fresh := make([]news.Article, 0, len(articles))
	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sent, err := p.tracker.IsSent(ctx, article.ID)
		if err != nil {
			logger.WithError(err).WithField("url", article.ID).Warn("Failed to check sent status, treating as new")
		}
		if sent {
			continue
		}
		fresh = append(fresh, article)
	}
	return fresh, nil
}

// sortNewestFirst сортирует по дате публикации, при равенстве сохраняет исходный порядок.
func sortNewestFirst(articles []news.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
}

func (p *Pipeline) validateDeps() error {
	switch {
	case p.collector == nil,
		p.matcher == nil,
		p.tracker == nil,
		p.clock == nil:
		return ErrNotConfigured
	default:
		return nil
	}
}
