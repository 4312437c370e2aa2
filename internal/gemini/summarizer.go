package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/news"
)

// maxContentRunes ограничивает размер описания в промпте.
const maxContentRunes = 1200

// Summarizer реализует app.Summarizer: одна строка сводки на каждую новость дайджеста.
// Весь дайджест укладывается в один запрос.
type Summarizer struct {
	client GeminiClient
	model  string
}

// NewSummarizer создаёт новый экземпляр суммаризатора.
func NewSummarizer(client GeminiClient, cfg config.Gemini) *Summarizer {
	return &Summarizer{
		client: client,
		model:  cfg.Model,
	}
}

type articleInput struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

type summaryResponse struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// Summarize реализует app.Summarizer.
// Возвращает копии новостей с заполненным Summary в исходном порядке.
// Новости, для которых модель не вернула сводку, остаются без неё.
func (s *Summarizer) Summarize(ctx context.Context, articles []news.Article) ([]news.Article, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	inputData := make([]articleInput, 0, len(articles))
	for _, article := range articles {
		inputData = append(inputData, articleInput{
			ID:      article.ID,
			Title:   article.Title,
			Content: truncateRunes(article.Description, maxContentRunes),
		})
	}

	inputJSON, err := json.Marshal(inputData)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}

	log.WithField("articles", len(articles)).Info("Requesting digest summaries from Gemini")

	responseText, err := s.client.GenerateText(ctx, s.model, buildPrompt(string(inputJSON)))
	if err != nil {
		return nil, fmt.Errorf("generate text: %w", err)
	}

	var summaries []summaryResponse
	if err := json.Unmarshal([]byte(responseText), &summaries); err != nil {
		// Модель иногда оборачивает JSON в markdown или добавляет текст
		cleaned := extractJSON(responseText)
		if cleaned == "" {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		if err := json.Unmarshal([]byte(cleaned), &summaries); err != nil {
			return nil, fmt.Errorf("unmarshal cleaned response: %w", err)
		}
	}

	byID := make(map[string]string, len(summaries))
	for _, resp := range summaries {
		// Сводка должна быть одной строкой
		summary := strings.Join(strings.Fields(resp.Summary), " ")
		if summary != "" {
			byID[resp.ID] = summary
		}
	}

	results := make([]news.Article, len(articles))
	copy(results, articles)
	missing := 0
	for i := range results {
		summary, ok := byID[results[i].ID]
		if !ok {
			missing++
			continue
		}
		results[i].Summary = summary
	}

	if missing > 0 {
		log.WithField("missing", missing).Warn("Gemini returned no summary for some articles")
	}

	return results, nil
}

func buildPrompt(inputJSON string) string {
	return fmt.Sprintf(`You are an editor of a short AI industry news digest.
You will receive a JSON list of news items with a unique id, a title and an optional description.
For each item write a neutral one-sentence English summary of at most 25 words.
Do not invent facts that are not in the input. Do not use markdown.
Return only a JSON array without any commentary, in the format:
[{"id": "<item id>", "summary": "<one sentence>"}, ...]

Input:
%s`, inputJSON)
}

// extractJSON вырезает первый JSON-массив из ответа модели.
func extractJSON(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
