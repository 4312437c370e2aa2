package sources

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/maine/ai_news_alerts/internal/news"
)

// apiSourceFallback используется, если поисковый API не вернул имя источника.
const apiSourceFallback = "NewsAPI"

// NormalizeRSSItem приводит запись RSS/Atom к каноническому виду.
// Возвращает false, если у записи нет ссылки.
func NormalizeRSSItem(item *gofeed.Item, source string, now time.Time) (news.Article, bool) {
	if item == nil {
		return news.Article{}, false
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	if link == "" {
		return news.Article{}, false
	}

	var published time.Time
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	default:
		published = parseTime(firstNonEmpty(item.Published, item.Updated), now)
	}

	return news.Article{
		ID:          link,
		Title:       normalizeTitle(item.Title),
		Description: stripHTML(firstNonEmpty(item.Description, item.Content)),
		PublishedAt: published,
		Source:      source,
	}, true
}

// NormalizeAPIArticle приводит результат поискового API к каноническому виду.
func NormalizeAPIArticle(rec APIArticle, now time.Time) (news.Article, bool) {
	link := strings.TrimSpace(rec.URL)
	if link == "" {
		return news.Article{}, false
	}

	source := strings.TrimSpace(rec.Source.Name)
	if source == "" {
		source = apiSourceFallback
	}

	return news.Article{
		ID:          link,
		Title:       normalizeTitle(rec.Title),
		Description: stripHTML(firstNonEmpty(rec.Description, rec.Content)),
		PublishedAt: parseTime(rec.PublishedAt, now),
		Source:      source,
	}, true
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return news.UntitledTitle
	}
	return title
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseTime разбирает дату из источника. Дата без часового пояса считается UTC,
// нераспознанная или пустая заменяется на now. Результат всегда в UTC.
func parseTime(value string, now time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return now.UTC()
	}

	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339Nano,
		time.RFC3339,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"02 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, f := range formats {
		// time.Parse трактует строку без зоны как UTC.
		if t, err := time.Parse(f, value); err == nil {
			return t.UTC()
		}
	}

	return now.UTC()
}

// blockElements разделяют текст пробелом, строчные теги склеиваются без пробела.
var blockElements = map[string]struct{}{
	"p": {}, "br": {}, "div": {}, "li": {}, "ul": {}, "ol": {}, "tr": {}, "td": {}, "th": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "blockquote": {}, "figure": {},
	"figcaption": {}, "section": {}, "article": {}, "hr": {}, "img": {},
}

// stripHTML убирает разметку, декодирует сущности и схлопывает пробелы.
func stripHTML(value string) string {
	if !strings.ContainsAny(value, "<&") {
		return strings.Join(strings.Fields(value), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return strings.Join(strings.Fields(value), " ")
	}

	var sb strings.Builder
	var walk func(sel *goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			name := goquery.NodeName(node)
			switch name {
			case "#text":
				sb.WriteString(node.Text())
			case "script", "style", "#comment":
			default:
				_, block := blockElements[name]
				if block {
					sb.WriteByte(' ')
				}
				walk(node)
				if block {
					sb.WriteByte(' ')
				}
			}
		})
	}
	walk(doc.Selection)

	return strings.Join(strings.Fields(sb.String()), " ")
}
