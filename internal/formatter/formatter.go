package formatter

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/news"
)

const (
	// telegramMaxMessageLength - максимальная длина сообщения в Telegram
	// (4096 кодовых единиц UTF-16, так считает Bot API)
	telegramMaxMessageLength = 4096
	// ellipsis завершает укороченный заголовок
	ellipsis = "…"
	// defaultTitle используется, если в конфиге заголовок пустой
	defaultTitle = "AI News Digest"
	// errorAlertTitle - заголовок сообщения об ошибке
	errorAlertTitle = "AI News Alerts Error"
	// headerTimeLayout - 12-часовой формат вида "08:00 AM"
	headerTimeLayout = "03:04 PM"
)

// htmlEscaper экранирует только то, что требует HTML-режим Telegram.
var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Formatter собирает HTML-сообщения для Telegram.
type Formatter struct {
	title string
	loc   *time.Location
	clock func() time.Time
}

// NewFormatter создаёт новый экземпляр форматтера.
// Время в заголовке показывается в часовом поясе loc.
func NewFormatter(cfg config.Digest, loc *time.Location, clock func() time.Time) *Formatter {
	title := strings.TrimSpace(cfg.Title)
	if title == "" {
		title = defaultTitle
	}
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return &Formatter{title: title, loc: loc, clock: clock}
}

// Digest форматирует не более max новостей (в порядке входа) и возвращает текст
// и число вошедших новостей. Если сообщение длиннее лимита Telegram, хвостовые
// новости отбрасываются, но одна всегда остаётся: у неё при необходимости
// убирается сводка и укорачивается заголовок.
func (f *Formatter) Digest(articles []news.Article, max int) (string, int) {
	if len(articles) == 0 {
		return "", 0
	}
	if max > 0 && len(articles) > max {
		articles = articles[:max]
	}

	header := fmt.Sprintf("🗞️ <b>%s - %s</b>\n", EscapeHTML(f.title), f.clock().In(f.loc).Format(headerTimeLayout))

	parts := []string{header}
	length := utf16Len(header)
	count := 0
	for i, article := range articles {
		block := formatEntry(i+1, article)
		// +1 за разделитель "\n"
		blockLen := utf16Len(strings.Join(block, "\n")) + 1
		if length+blockLen > telegramMaxMessageLength {
			if count > 0 {
				break
			}
			block = formatEntry(i+1, shrinkEntry(i+1, article, telegramMaxMessageLength-length))
			blockLen = utf16Len(strings.Join(block, "\n")) + 1
		}
		parts = append(parts, block...)
		length += blockLen
		count++
	}

	return strings.Join(parts, "\n"), count
}

// Fit возвращает те новости, которые реально попадут в сообщение Digest.
func (f *Formatter) Fit(articles []news.Article, max int) []news.Article {
	_, n := f.Digest(articles, max)
	return articles[:n]
}

// ErrorAlert форматирует короткое уведомление об ошибке.
func (f *Formatter) ErrorAlert(message string) string {
	return fmt.Sprintf("⚠️ <b>%s</b>\n\n%s", errorAlertTitle, EscapeHTML(message))
}

// EscapeHTML экранирует &, < и >.
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}

func formatEntry(idx int, article news.Article) []string {
	title := article.Title
	if strings.TrimSpace(title) == "" {
		title = news.UntitledTitle
	}

	lines := []string{fmt.Sprintf("%d. %s", idx, EscapeHTML(title))}
	if summary := strings.TrimSpace(article.Summary); summary != "" {
		lines = append(lines, fmt.Sprintf("   <i>%s</i>", EscapeHTML(summary)))
	}
	lines = append(lines, fmt.Sprintf("   → %s\n", article.URL()))
	return lines
}

// shrinkEntry подгоняет единственную новость под budget: сначала убирает сводку,
// затем укорачивает заголовок.
func shrinkEntry(idx int, article news.Article, budget int) news.Article {
	article.Summary = ""
	if strings.TrimSpace(article.Title) == "" {
		return article
	}

	// однобуквенный заголовок занимает место разделителя "\n"
	overhead := utf16Len(strings.Join(formatEntry(idx, news.Article{ID: article.ID, Title: "x"}), "\n"))
	article.Title = truncateTitle(article.Title, budget-overhead)
	return article
}

// truncateTitle обрезает заголовок так, чтобы после экранирования он занимал
// не больше limit кодовых единиц UTF-16. Режем по исходным рунам, чтобы не
// разорвать HTML-сущность.
func truncateTitle(title string, limit int) string {
	if utf16Len(EscapeHTML(title)) <= limit {
		return title
	}
	limit -= utf16Len(ellipsis)

	var sb strings.Builder
	used := 0
	for _, r := range title {
		w := utf16Len(EscapeHTML(string(r)))
		if used+w > limit {
			break
		}
		sb.WriteRune(r)
		used += w
	}
	return strings.TrimSpace(sb.String()) + ellipsis
}

// utf16Len считает длину строки в кодовых единицах UTF-16.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
