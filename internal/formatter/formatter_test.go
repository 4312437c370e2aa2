package formatter

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/news"
)

// 20:05 UTC = 03:05 PM в Лиме (UTC-5)
var formatNow = time.Date(2025, 1, 10, 20, 5, 0, 0, time.UTC)

func newTestFormatter(t *testing.T) *Formatter {
	t.Helper()
	loc := time.FixedZone("America/Lima", -5*60*60)
	return NewFormatter(config.Digest{MaxArticles: 5}, loc, func() time.Time { return formatNow })
}

func TestFormatter_Digest(t *testing.T) {
	f := newTestFormatter(t)

	articles := []news.Article{
		{ID: "https://example.com/1", Title: "OpenAI & Anthropic <team up>"},
		{ID: "https://example.com/2", Title: "Agentic AI"},
	}

	text, n := f.Digest(articles, 5)
	assert.Equal(t, 2, n)

	want := "🗞️ <b>AI News Digest - 03:05 PM</b>\n" +
		"\n" +
		"1. OpenAI &amp; Anthropic &lt;team up&gt;\n" +
		"   → https://example.com/1\n" +
		"\n" +
		"2. Agentic AI\n" +
		"   → https://example.com/2\n"
	assert.Equal(t, want, text)
}

func TestFormatter_DigestCapsAtMax(t *testing.T) {
	f := newTestFormatter(t)

	var articles []news.Article
	for i := 1; i <= 8; i++ {
		articles = append(articles, news.Article{ID: fmt.Sprintf("https://example.com/%d", i), Title: fmt.Sprintf("Title %d", i)})
	}

	text, n := f.Digest(articles, 5)
	assert.Equal(t, 5, n)
	assert.Contains(t, text, "5. Title 5")
	assert.NotContains(t, text, "6. Title 6")
}

func TestFormatter_DigestEmpty(t *testing.T) {
	f := newTestFormatter(t)

	text, n := f.Digest(nil, 5)
	assert.Empty(t, text)
	assert.Zero(t, n)
}

func TestFormatter_DigestSummaryAndUntitled(t *testing.T) {
	f := newTestFormatter(t)

	text, _ := f.Digest([]news.Article{
		{ID: "https://example.com/1", Title: "  ", Summary: "Agents <now> pay"},
	}, 5)

	assert.Contains(t, text, "1. Untitled\n   <i>Agents &lt;now&gt; pay</i>\n   → https://example.com/1\n")
}

func TestFormatter_DigestCustomTitle(t *testing.T) {
	f := NewFormatter(config.Digest{Title: "Agents & Co"}, time.UTC, func() time.Time { return formatNow })

	text, _ := f.Digest([]news.Article{{ID: "https://example.com/1", Title: "x"}}, 5)
	assert.True(t, strings.HasPrefix(text, "🗞️ <b>Agents &amp; Co - 08:05 PM</b>\n"), text)
}

func TestFormatter_DigestLengthLimit(t *testing.T) {
	f := newTestFormatter(t)

	long := strings.Repeat("я", 1500)
	articles := []news.Article{
		{ID: "https://example.com/1", Title: long},
		{ID: "https://example.com/2", Title: long},
		{ID: "https://example.com/3", Title: long},
	}

	text, n := f.Digest(articles, 5)
	assert.Equal(t, 2, n)
	assert.LessOrEqual(t, utf16Len(text), telegramMaxMessageLength)
	assert.NotContains(t, text, "https://example.com/3")

	fitted := f.Fit(articles, 5)
	require.Len(t, fitted, 2)
	assert.Equal(t, "https://example.com/2", fitted[1].ID)
}

func TestFormatter_DigestCountsUTF16Units(t *testing.T) {
	f := newTestFormatter(t)

	// каждый эмодзи занимает две кодовые единицы UTF-16
	emoji := strings.Repeat("😀", 1300)
	articles := []news.Article{
		{ID: "https://example.com/1", Title: emoji},
		{ID: "https://example.com/2", Title: emoji},
		{ID: "https://example.com/3", Title: emoji},
	}

	text, n := f.Digest(articles, 5)
	assert.Equal(t, 1, n)
	assert.LessOrEqual(t, utf16Len(text), telegramMaxMessageLength)
	assert.NotContains(t, text, "https://example.com/2")
}

func TestFormatter_DigestShrinksOversizedEntry(t *testing.T) {
	tests := []struct {
		name    string
		article news.Article
		want    string
	}{
		{
			name:    "long title",
			article: news.Article{ID: "https://example.com/1", Title: strings.Repeat("a", 5000)},
			want:    "aaa…",
		},
		{
			name:    "long emoji title",
			article: news.Article{ID: "https://example.com/1", Title: strings.Repeat("😀", 3000)},
			want:    "😀😀…",
		},
		{
			name:    "escaped characters are not split",
			article: news.Article{ID: "https://example.com/1", Title: strings.Repeat("&", 3000)},
			want:    "&amp;&amp;…",
		},
		{
			name:    "long summary is dropped",
			article: news.Article{ID: "https://example.com/1", Title: "Short title", Summary: strings.Repeat("s", 5000)},
			want:    "1. Short title\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFormatter(t)

			text, n := f.Digest([]news.Article{tt.article}, 5)
			assert.Equal(t, 1, n)
			assert.LessOrEqual(t, utf16Len(text), telegramMaxMessageLength)
			assert.Contains(t, text, tt.want)
			assert.Contains(t, text, "   → https://example.com/1\n")
			assert.NotContains(t, text, "<i>")
		})
	}
}

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 0, utf16Len(""))
	assert.Equal(t, 3, utf16Len("abc"))
	assert.Equal(t, 1, utf16Len("я"))
	assert.Equal(t, 2, utf16Len("😀"))
}

func TestFormatter_ErrorAlert(t *testing.T) {
	f := newTestFormatter(t)

	got := f.ErrorAlert("feed <broken> & down")
	assert.Equal(t, "⚠️ <b>AI News Alerts Error</b>\n\nfeed &lt;broken&gt; &amp; down", got)
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a & b", "a &amp; b"},
		{"<b>", "&lt;b&gt;"},
		{`"quoted" 'single'`, `"quoted" 'single'`},
		{"&amp;", "&amp;amp;"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeHTML(tt.in), tt.in)
	}
}
