package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/news"
)

type fakeFetcher struct {
	results map[string][]news.Article
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) FetchFeed(ctx context.Context, feed config.Feed, cutoff time.Time) ([]news.Article, error) {
	f.calls = append(f.calls, feed.Name)
	if err := f.errs[feed.Name]; err != nil {
		return nil, err
	}
	return f.results[feed.Name], nil
}

type fakeSearcher struct {
	enabled  bool
	articles []news.Article
	err      error
	gotFrom  time.Time
	gotKW    []string
}

func (f *fakeSearcher) Enabled() bool { return f.enabled }

func (f *fakeSearcher) Search(ctx context.Context, keywords []string, from time.Time) ([]news.Article, error) {
	f.gotKW = keywords
	f.gotFrom = from
	return f.articles, f.err
}

func article(id, source string) news.Article {
	return news.Article{ID: id, Title: id, Source: source, PublishedAt: fixedNow}
}

func TestAggregator_Collect_DedupFirstSeenWins(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string][]news.Article{
		"A": {article("u1", "A"), article("u2", "A")},
		"B": {article("u2", "B"), article("u3", "B")},
	}}
	search := &fakeSearcher{enabled: true, articles: []news.Article{article("u3", "API"), article("u4", "API")}}

	agg := NewAggregator(AggregatorDeps{
		Feeds:    []config.Feed{{Name: "A"}, {Name: "B"}},
		Keywords: []string{"OpenAI"},
		Window:   8 * time.Hour,
		RSS:      fetcher,
		Search:   search,
		Clock:    func() time.Time { return fixedNow },
	})

	got, err := agg.Collect(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID+"@"+a.Source)
	}
	assert.Equal(t, []string{"u1@A", "u2@A", "u3@B", "u4@API"}, ids)
	assert.Equal(t, []string{"A", "B"}, fetcher.calls)
	assert.Equal(t, []string{"OpenAI"}, search.gotKW)
	assert.Equal(t, fixedNow.Add(-8*time.Hour), search.gotFrom)
}

func TestAggregator_Collect_FailureIsolation(t *testing.T) {
	fetcher := &fakeFetcher{
		results: map[string][]news.Article{"healthy": {article("ok", "healthy")}},
		errs:    map[string]error{"slow": context.DeadlineExceeded},
	}
	search := &fakeSearcher{enabled: true, err: errors.New("boom")}

	agg := NewAggregator(AggregatorDeps{
		Feeds:  []config.Feed{{Name: "slow"}, {Name: "healthy"}},
		RSS:    fetcher,
		Search: search,
		Window: time.Hour,
	})

	got, err := agg.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
}

func TestAggregator_Collect_AllFailIsEmpty(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{"a": errors.New("x"), "b": errors.New("y")}}

	agg := NewAggregator(AggregatorDeps{
		Feeds:  []config.Feed{{Name: "a"}, {Name: "b"}},
		RSS:    fetcher,
		Search: &fakeSearcher{enabled: false},
		Window: time.Hour,
	})

	got, err := agg.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregator_Collect_DisabledSearchNotCalled(t *testing.T) {
	search := &fakeSearcher{enabled: false, articles: []news.Article{article("x", "API")}}
	agg := NewAggregator(AggregatorDeps{RSS: &fakeFetcher{}, Search: search, Window: time.Hour})

	got, err := agg.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, search.gotKW)
}

func TestAggregator_Collect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := NewAggregator(AggregatorDeps{
		Feeds:  []config.Feed{{Name: "a"}},
		RSS:    &fakeFetcher{},
		Window: time.Hour,
	})
	_, err := agg.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregator_Collect_RealTimeoutDoesNotBlockHealthyFeed(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	healthy := serveString(t, rssDocument(rssItem("OpenAI news", "https://example.com/h", fixedNow.Add(-time.Hour))))

	clock := func() time.Time { return fixedNow }
	agg := NewAggregator(AggregatorDeps{
		Feeds: []config.Feed{
			{Name: "slow", URL: slow.URL},
			{Name: "healthy", URL: healthy.URL},
		},
		Window: 8 * time.Hour,
		RSS:    NewRSSCollector(&http.Client{Timeout: 50 * time.Millisecond}, "", clock),
		Clock:  clock,
	})

	got, err := agg.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com/h", got[0].ID)
}
