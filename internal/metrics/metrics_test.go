package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maine/ai_news_alerts/internal/news"
)

var finished = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func TestRecorder_Observe(t *testing.T) {
	r := New()

	report := news.RunReport{
		Fetched:   10,
		Matched:   4,
		New:       3,
		Digest:    []news.Article{{ID: "a"}, {ID: "b"}},
		Delivered: true,
		Pruned:    5,
		Keywords:  map[string]int{"OpenAI": 3, "AI agents": 1},
	}
	r.Observe(report, nil, 2*time.Second, finished)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("delivered")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.articles.WithLabelValues("fetched")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.articles.WithLabelValues("digest")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.delivered))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.pruned))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.keywordHits.WithLabelValues("OpenAI")))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.lastSuccess))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.duration))
}

func TestRecorder_FailedRunKeepsLastSuccess(t *testing.T) {
	r := New()
	r.Observe(news.RunReport{}, nil, time.Second, finished)
	r.Observe(news.RunReport{}, errors.New("boom"), time.Second, finished.Add(time.Hour))

	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.lastSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("error")))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name   string
		report news.RunReport
		err    error
		want   string
	}{
		{"noop", news.RunReport{}, nil, "noop"},
		{"delivered", news.RunReport{Delivered: true, Digest: []news.Article{{ID: "a"}}}, nil, "delivered"},
		{"delivery failed", news.RunReport{Digest: []news.Article{{ID: "a"}}}, nil, "delivery_failed"},
		{"error", news.RunReport{}, errors.New("x"), "error"},
		{"interrupted", news.RunReport{}, context.Canceled, "interrupted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcome(tt.report, tt.err))
		})
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.Observe(news.RunReport{Fetched: 1}, nil, time.Second, finished)

	path := filepath.Join(t.TempDir(), "alerts.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ai_news_alerts_runs_total{outcome="noop"} 1`)
	assert.Contains(t, string(data), `ai_news_alerts_articles{stage="fetched"} 1`)
}
