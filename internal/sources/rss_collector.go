package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/news"
)

// defaultUserAgent используется, если в конфиге не задан свой.
const defaultUserAgent = "Mozilla/5.0 (compatible; ai-news-alerts/1.0)"

// RSSCollector загружает и нормализует новости из RSS/Atom-лент.
type RSSCollector struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
	clock     func() time.Time
}

// NewRSSCollector создаёт новый экземпляр.
func NewRSSCollector(client *http.Client, userAgent string, clock func() time.Time) *RSSCollector {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if clock == nil {
		clock = time.Now
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &RSSCollector{
		client:    client,
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
		clock:     clock,
	}
}

// FetchFeed загружает одну ленту и возвращает новости, опубликованные не раньше cutoff.
// Записи без ссылки отбрасываются, остальные записи ленты не страдают.
func (c *RSSCollector) FetchFeed(ctx context.Context, feed config.Feed, cutoff time.Time) ([]news.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	parsed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	now := c.clock()
	articles := make([]news.Article, 0, len(parsed.Items))
	skipped := 0
	for _, item := range parsed.Items {
		article, ok := NormalizeRSSItem(item, feed.Name, now)
		if !ok {
			skipped++
			continue
		}
		if article.PublishedAt.Before(cutoff) {
			continue
		}
		articles = append(articles, article)
	}

	if skipped > 0 {
		log.WithFields(log.Fields{"source": feed.Name, "skipped": skipped}).Debug("Dropped feed entries without a link")
	}

	return articles, nil
}

// isTimeout сообщает, вызвана ли ошибка истечением таймаута.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
