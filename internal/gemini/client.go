package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// ErrMissingAPIKey возвращается, если GEMINI_API_KEY не задан.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required for summaries")

const (
	// maxAttempts - попытки запроса к Gemini; сводки необязательны, поэтому ждём недолго
	maxAttempts = 3
	// baseDelay - задержка перед первым повтором
	baseDelay = 5 * time.Second
)

// GeminiClient определяет интерфейс для работы с Gemini API.
// Это позволяет легко создавать моки для тестирования.
type GeminiClient interface {
	GenerateText(ctx context.Context, model string, prompt string) (string, error)
}

// Client инкапсулирует работу с Gemini API через официальный SDK.
type Client struct {
	client *genai.Client
}

// Убеждаемся, что Client реализует интерфейс GeminiClient.
var _ GeminiClient = (*Client)(nil)

// NewClient создаёт новый клиент для работы с Gemini API.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		client: client,
	}, nil
}

// GenerateText отправляет запрос к Gemini API и возвращает текстовый ответ.
// Временные ошибки (429 RPM/TPM, 5xx) повторяются, при исчерпанной квоте повтора нет.
func (c *Client) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	var text string
	operation := func() error {
		result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			return classifyError(err)
		}
		out, err := result.Text()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("get text from result: %w", err))
		}
		text = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("wait", wait).Warn("Retrying Gemini API request")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", err
	}
	return text, nil
}

// classifyError решает, повторять ли запрос.
func classifyError(err error) error {
	errStr := err.Error()

	switch {
	case isQuotaExceededError(errStr):
		return backoff.Permanent(fmt.Errorf("gemini API quota exceeded: %w", err))
	case isRateLimitError(errStr):
		return fmt.Errorf("gemini API rate limited: %w", err)
	case isServiceUnavailableError(errStr), isTemporaryError(errStr):
		return fmt.Errorf("gemini API temporary error: %w", err)
	default:
		return backoff.Permanent(fmt.Errorf("generate content: %w", err))
	}
}

// isQuotaExceededError проверяет признаки исчерпанной дневной квоты.
func isQuotaExceededError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "daily limit") ||
		strings.Contains(errLower, "generate_content_free_tier_requests")
}

// isRateLimitError проверяет, является ли ошибка связанной с rate limit (RPM/TPM).
func isRateLimitError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "429") ||
		strings.Contains(errLower, "too many requests") ||
		strings.Contains(errLower, "resource exhausted")
}

// isServiceUnavailableError проверяет, является ли ошибка 503 (модель перегружена).
func isServiceUnavailableError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "503") ||
		strings.Contains(errLower, "service unavailable") ||
		strings.Contains(errLower, "overloaded")
}

// isTemporaryError проверяет, является ли ошибка временной (500, 502, 504).
func isTemporaryError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "500") ||
		strings.Contains(errLower, "502") ||
		strings.Contains(errLower, "504") ||
		strings.Contains(errLower, "internal server error") ||
		strings.Contains(errLower, "bad gateway") ||
		strings.Contains(errLower, "gateway timeout")
}
