package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maine/ai_news_alerts/internal/config"
)

// FeedDiscoverer ищет RSS/Atom-ленты на главной странице сайта.
type FeedDiscoverer struct {
	client    *http.Client
	userAgent string
}

// NewFeedDiscoverer создаёт новый экземпляр.
func NewFeedDiscoverer(client *http.Client, userAgent string) *FeedDiscoverer {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &FeedDiscoverer{client: client, userAgent: userAgent}
}

// Discover возвращает найденные ленты в порядке появления на странице.
// Сначала <link rel="alternate">, затем ссылки, похожие на ленты.
func (d *FeedDiscoverer) Discover(ctx context.Context, siteURL string) ([]config.Feed, error) {
	base, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return extractFeeds(resp.Body, base)
}

func extractFeeds(body io.Reader, base *url.URL) ([]config.Feed, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	siteName := strings.TrimSpace(doc.Find("title").First().Text())
	if siteName == "" {
		siteName = base.Host
	}

	seen := make(map[string]struct{})
	var feeds []config.Feed
	add := func(href, title string) {
		resolved, ok := resolveURL(base, href)
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		name := strings.TrimSpace(title)
		if name == "" {
			name = siteName
		}
		feeds = append(feeds, config.Feed{Name: name, URL: resolved})
	}

	doc.Find(`link[rel="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(s.AttrOr("type", ""))
		if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") {
			return
		}
		add(s.AttrOr("href", ""), s.AttrOr("title", ""))
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if !looksLikeFeedURL(href) {
			return
		}
		add(href, "")
	})

	return feeds, nil
}

func looksLikeFeedURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, pattern := range []string{"/rss", "/feed", ".rss", "/atom", "rss.xml", "atom.xml", "feed.xml"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func resolveURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}
