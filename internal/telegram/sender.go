package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/formatter"
	"github.com/maine/ai_news_alerts/internal/news"
)

const (
	// defaultMaxAttempts - количество попыток отправки дайджеста
	defaultMaxAttempts = 3
	// defaultBaseDelay - задержка перед первым повтором, дальше удваивается
	defaultBaseDelay = time.Second
)

// RetryPolicy описывает повторы отправки: задержки base, 2*base, 4*base...
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// PolicyFromConfig строит политику из секции retry.
func PolicyFromConfig(cfg config.Retry) RetryPolicy {
	return RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay.Std()}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	return p
}

// NotifierDeps перечисляет зависимости Notifier.
type NotifierDeps struct {
	Client    TelegramClient
	ChatID    string
	Formatter *formatter.Formatter
	Policy    RetryPolicy
	// Timer позволяет тестам обходиться без реального ожидания.
	Timer backoff.Timer
}

// Notifier реализует app.Notifier: форматирует и доставляет дайджест в Telegram.
type Notifier struct {
	client    TelegramClient
	chatID    string
	formatter *formatter.Formatter
	policy    RetryPolicy
	timer     backoff.Timer
}

// NewNotifier создаёт новый экземпляр. Без клиента или chat id уведомления отключены.
func NewNotifier(deps NotifierDeps) *Notifier {
	f := deps.Formatter
	if f == nil {
		f = formatter.NewFormatter(config.Digest{}, time.UTC, nil)
	}
	return &Notifier{
		client:    deps.Client,
		chatID:    deps.ChatID,
		formatter: f,
		policy:    deps.Policy.normalized(),
		timer:     deps.Timer,
	}
}

// Configured сообщает, настроена ли доставка.
func (n *Notifier) Configured() bool {
	return n.client != nil && n.chatID != ""
}

// SendDigest реализует app.Notifier.
// Возвращает true только если сообщение принято Telegram.
func (n *Notifier) SendDigest(ctx context.Context, articles []news.Article, max int) bool {
	if len(articles) == 0 {
		log.Info("No articles to send, skipping notification")
		return false
	}
	if !n.Configured() {
		log.Warn("Telegram bot not configured, skipping message send")
		return false
	}

	text, included := n.formatter.Digest(articles, max)
	if shown := min(len(articles), max); max > 0 && included < shown {
		log.WithFields(log.Fields{"included": included, "requested": shown}).Warn("Digest trimmed to fit Telegram message limit")
	}

	if err := n.send(ctx, text, n.policy.MaxAttempts); err != nil {
		log.WithError(err).Error("Failed to send Telegram notification")
		return false
	}
	log.WithField("articles", included).Info("Successfully sent Telegram notification")
	return true
}

// SendErrorAlert отправляет уведомление об ошибке одной попыткой.
// Ошибки только логируются.
func (n *Notifier) SendErrorAlert(ctx context.Context, message string) bool {
	if !n.Configured() {
		return false
	}

	if err := n.send(ctx, n.formatter.ErrorAlert(message), 1); err != nil {
		log.WithError(err).Error("Error sending error notification")
		return false
	}
	return true
}

// send отправляет сообщение не более attempts раз.
// Повторяются только повторяемые TransportError, остальные ошибки завершают отправку сразу.
func (n *Notifier) send(ctx context.Context, text string, attempts int) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := n.client.SendMessage(ctx, n.chatID, text, tgbotapi.ModeHTML)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}

		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			log.WithError(err).Error("Unexpected error sending Telegram message")
			return backoff.Permanent(err)
		}

		log.WithError(err).WithFields(log.Fields{
			"attempt":      attempt,
			"max_attempts": attempts,
		}).Warn("Telegram error")

		if !transportErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		log.WithField("wait", wait).Info("Retrying Telegram send")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, n.timer); err != nil {
		if attempt >= attempts {
			log.WithField("attempts", attempts).Error("Failed to send Telegram notification after all attempts")
		}
		return err
	}
	return nil
}
