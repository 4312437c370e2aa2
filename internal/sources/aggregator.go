package sources

import (
	"context"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/news"
)

// FeedFetcher загружает одну RSS-ленту.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, feed config.Feed, cutoff time.Time) ([]news.Article, error)
}

// Searcher ищет новости по ключевым словам во внешнем API.
type Searcher interface {
	Enabled() bool
	Search(ctx context.Context, keywords []string, from time.Time) ([]news.Article, error)
}

// AggregatorDeps перечисляет зависимости агрегатора.
type AggregatorDeps struct {
	Feeds    []config.Feed
	Keywords []string
	Window   time.Duration
	RSS      FeedFetcher
	Search   Searcher
	Clock    func() time.Time
}

// Aggregator собирает новости из всех источников и убирает дубли.
type Aggregator struct {
	feeds    []config.Feed
	keywords []string
	window   time.Duration
	rss      FeedFetcher
	search   Searcher
	clock    func() time.Time
}

// NewAggregator создаёт агрегатор. Search может быть nil.
func NewAggregator(deps AggregatorDeps) *Aggregator {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	rss := deps.RSS
	if rss == nil {
		rss = NewRSSCollector(nil, "", clock)
	}
	return &Aggregator{
		feeds:    deps.Feeds,
		keywords: deps.Keywords,
		window:   deps.Window,
		rss:      rss,
		search:   deps.Search,
		clock:    clock,
	}
}

// Collect реализует app.SourceCollector.
// Сначала RSS-ленты в порядке конфига, затем поисковый API; при совпадении ссылки
// остаётся первая встреченная копия. Ошибки отдельных источников только логируются,
// ошибка возвращается лишь при отмене контекста.
func (a *Aggregator) Collect(ctx context.Context) ([]news.Article, error) {
	cutoff := a.clock().Add(-a.window)

	var all []news.Article
	for _, feed := range a.feeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry := log.WithFields(log.Fields{"source": feed.Name, "url": feed.URL})
		entry.Info("Fetching RSS feed")

		items, err := a.rss.FetchFeed(ctx, feed, cutoff)
		if err != nil {
			// Ошибка одной ленты не мешает остальным
			if isTimeout(err) {
				entry.WithError(err).Warn("Timeout fetching RSS feed")
			} else {
				entry.WithError(err).Error("Error fetching RSS feed")
			}
			continue
		}

		entry.WithField("count", len(items)).Info("Fetched recent articles")
		all = append(all, items...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.search != nil && a.search.Enabled() {
		log.Info("Fetching articles from NewsAPI")
		found, err := a.search.Search(ctx, a.keywords, cutoff)
		if err != nil {
			log.WithError(err).Error("Error fetching from NewsAPI")
		} else {
			log.WithField("count", len(found)).Info("Fetched articles from NewsAPI")
			all = append(all, found...)
		}
	} else {
		log.Info("NewsAPI key not configured, skipping NewsAPI fetch")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unique := lo.UniqBy(all, func(article news.Article) string {
		return article.ID
	})

	log.WithFields(log.Fields{
		"total":        len(unique),
		"before_dedup": len(all),
	}).Info("Total articles fetched")

	return unique, nil
}
