package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrInvalidChatID возвращается, если chat id не число и не @username канала.
var ErrInvalidChatID = errors.New("chat id must be numeric or @channel")

// TelegramClient определяет интерфейс для работы с Telegram Bot API.
// Это позволяет легко создавать моки для тестирования.
type TelegramClient interface {
	SendMessage(ctx context.Context, chatID string, text string, parseMode string) error
}

// TransportError описывает сбой доставки: сетевой или ответ API с ошибкой.
// Code равен коду ошибки Telegram, либо 0 для сетевых сбоев.
type TransportError struct {
	Code int
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("telegram api error %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("telegram transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable сообщает, имеет ли смысл повторять запрос.
// 400/401/403/404 означают неверный запрос, токен или чат: повтор не поможет.
func (e *TransportError) Retryable() bool {
	switch e.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	default:
		return true
	}
}

// Client инкапсулирует работу с Telegram Bot API через telegram-bot-api.
// Бот создаётся при первой отправке: конструктор библиотеки делает запрос getMe.
type Client struct {
	token    string
	endpoint string
	http     *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// Убеждаемся, что Client реализует интерфейс TelegramClient.
var _ TelegramClient = (*Client)(nil)

// NewClient создаёт клиента. endpoint в формате tgbotapi.APIEndpoint, пустой означает официальный.
func NewClient(token, endpoint string) *Client {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &Client{
		token:    token,
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SendMessage отправляет текстовое сообщение без превью ссылок.
func (c *Client) SendMessage(ctx context.Context, chatID string, text string, parseMode string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := newMessage(chatID, text)
	if err != nil {
		return err
	}
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true

	bot, err := c.api()
	if err != nil {
		return wrapTransportError(err)
	}

	if _, err := bot.Send(msg); err != nil {
		return wrapTransportError(err)
	}
	return nil
}

func (c *Client) api() (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bot != nil {
		return c.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(c.token, c.endpoint, c.http)
	if err != nil {
		return nil, err
	}
	c.bot = bot
	return bot, nil
}

func newMessage(chatID string, text string) (tgbotapi.MessageConfig, error) {
	chatID = strings.TrimSpace(chatID)
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text), nil
	}
	if strings.HasPrefix(chatID, "@") && len(chatID) > 1 {
		return tgbotapi.NewMessageToChannel(chatID, text), nil
	}
	return tgbotapi.MessageConfig{}, fmt.Errorf("%w: %q", ErrInvalidChatID, chatID)
}

func wrapTransportError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &TransportError{Code: apiErr.Code, Err: err}
	}
	return &TransportError{Err: err}
}
