package config

import (
	"os"
	"strings"
)

// EnvConfig содержит токены и другие переменные окружения.
// Все значения необязательны: пустое значение отключает соответствующий модуль.
type EnvConfig struct {
	TelegramBotToken string
	TelegramChatID   string
	NewsAPIKey       string
	GeminiAPIKey     string
}

// LoadEnvConfig читает переменные окружения.
func LoadEnvConfig() EnvConfig {
	return EnvConfig{
		TelegramBotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:   strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		NewsAPIKey:       strings.TrimSpace(os.Getenv("NEWSAPI_KEY")),
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
	}
}

// TelegramConfigured сообщает, заданы ли реквизиты бота.
func (e EnvConfig) TelegramConfigured() bool {
	return e.TelegramBotToken != "" && e.TelegramChatID != ""
}
