package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maine/ai_news_alerts/internal/news"
)

const (
	// NewsAPIEndpoint указывает на полнотекстовый поиск NewsAPI.
	NewsAPIEndpoint = "https://newsapi.org/v2/everything"
	// максимум для бесплатного тарифа
	newsAPIPageSize = 100
)

// APIArticle описывает запись из ответа NewsAPI.
type APIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

type newsAPIResponse struct {
	Status       string       `json:"status"`
	TotalResults int          `json:"totalResults"`
	Articles     []APIArticle `json:"articles"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
}

// NewsAPIClient ищет новости по ключевым словам через NewsAPI.
// Пустой ключ означает, что источник отключён.
type NewsAPIClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
	clock    func() time.Time
}

// NewNewsAPIClient создаёт клиента. endpoint можно оставить пустым.
func NewNewsAPIClient(apiKey, endpoint string, client *http.Client, clock func() time.Time) *NewsAPIClient {
	if endpoint == "" {
		endpoint = NewsAPIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if clock == nil {
		clock = time.Now
	}
	return &NewsAPIClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   client,
		clock:    clock,
	}
}

// Enabled сообщает, задан ли ключ API.
func (c *NewsAPIClient) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// BuildQuery объединяет ключевые слова через OR, каждое в кавычках.
func BuildQuery(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%q", kw))
	}
	return strings.Join(parts, " OR ")
}

// Search возвращает нормализованные новости начиная с from.
// Ответ со статусом, отличным от "ok", не ошибка: возвращается пустой список.
func (c *NewsAPIClient) Search(ctx context.Context, keywords []string, from time.Time) ([]news.Article, error) {
	if !c.Enabled() {
		return nil, nil
	}

	query := BuildQuery(keywords)
	if query == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("from", from.UTC().Format(time.RFC3339))
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", fmt.Sprintf("%d", newsAPIPageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var payload newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if payload.Status != "ok" {
		log.WithFields(log.Fields{
			"status":  payload.Status,
			"code":    payload.Code,
			"message": payload.Message,
		}).Warn("NewsAPI returned a non-ok status")
		return nil, nil
	}

	now := c.clock()
	articles := make([]news.Article, 0, len(payload.Articles))
	for _, rec := range payload.Articles {
		article, ok := NormalizeAPIArticle(rec, now)
		if !ok {
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}
