// Package matcher отбирает новости по списку ключевых слов.
package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/maine/ai_news_alerts/internal/news"
)

const (
	wordBefore = `(?:^|[^\p{L}\p{N}_])`
	wordAfter  = `(?:$|[^\p{L}\p{N}_])`
	// \s в RE2 покрывает только ASCII-пробелы
	phraseGap  = `[\s\p{Zs}]+`
)

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

// Matcher ищет ключевые слова целиком и без учёта регистра.
type Matcher struct {
	patterns []keywordPattern
}

// New компилирует шаблоны. Пустые слова пропускаются, повторы (без учёта регистра)
// схлопываются с сохранением первого написания.
func New(keywords []string) *Matcher {
	cleaned := lo.Filter(keywords, func(kw string, _ int) bool {
		return strings.TrimSpace(kw) != ""
	})
	cleaned = lo.UniqBy(lo.Map(cleaned, func(kw string, _ int) string {
		return strings.TrimSpace(kw)
	}), strings.ToLower)

	patterns := make([]keywordPattern, 0, len(cleaned))
	for _, kw := range cleaned {
		patterns = append(patterns, keywordPattern{
			keyword: kw,
			re:      regexp.MustCompile(buildPattern(kw)),
		})
	}
	return &Matcher{patterns: patterns}
}

// buildPattern требует границу слова с каждой стороны, где ключевое слово
// начинается или заканчивается буквой/цифрой. Пробелы внутри фразы совпадают
// с любой последовательностью пробельных символов, включая Unicode-пробелы.
func buildPattern(keyword string) string {
	words := strings.Fields(keyword)
	quoted := lo.Map(words, func(w string, _ int) string {
		return regexp.QuoteMeta(w)
	})

	var sb strings.Builder
	sb.WriteString("(?i)")
	runes := []rune(keyword)
	if isWordRune(runes[0]) {
		sb.WriteString(wordBefore)
	}
	sb.WriteString(strings.Join(quoted, phraseGap))
	if isWordRune(runes[len(runes)-1]) {
		sb.WriteString(wordAfter)
	}
	return sb.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Keywords возвращает ключевые слова в порядке конфигурации.
func (m *Matcher) Keywords() []string {
	return lo.Map(m.patterns, func(p keywordPattern, _ int) string {
		return p.keyword
	})
}

// Match возвращает ключевые слова, найденные в заголовке и описании.
func (m *Matcher) Match(article news.Article) []string {
	text := article.Title + " " + article.Description

	var matched []string
	for _, p := range m.patterns {
		if p.re.MatchString(text) {
			matched = append(matched, p.keyword)
		}
	}
	return matched
}

// Filter оставляет новости хотя бы с одним совпадением и проставляет MatchedKeywords.
// Порядок сохраняется, входной срез не изменяется.
func (m *Matcher) Filter(articles []news.Article) []news.Article {
	filtered := make([]news.Article, 0, len(articles))
	for _, article := range articles {
		matched := m.Match(article)
		if len(matched) == 0 {
			continue
		}
		article.MatchedKeywords = matched
		filtered = append(filtered, article)
	}
	return filtered
}

// Stats считает, сколько новостей совпало с каждым ключевым словом.
func (m *Matcher) Stats(articles []news.Article) map[string]int {
	stats := make(map[string]int, len(m.patterns))
	for _, p := range m.patterns {
		stats[p.keyword] = 0
	}
	for _, article := range articles {
		for _, kw := range article.MatchedKeywords {
			if _, ok := stats[kw]; ok {
				stats[kw]++
			}
		}
	}
	return stats
}
