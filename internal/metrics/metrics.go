// Package metrics собирает показатели запусков для textfile-коллектора node_exporter.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/maine/ai_news_alerts/internal/news"
)

const namespace = "ai_news_alerts"

// Recorder хранит показатели в собственном реестре, без глобального состояния.
type Recorder struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	articles    *prometheus.GaugeVec
	delivered   prometheus.Counter
	pruned      prometheus.Counter
	keywordHits *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
	duration    prometheus.Gauge
}

// New создаёт новый экземпляр.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		articles: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "articles",
			Help:      "Articles seen by the last run, per pipeline stage.",
		}, []string{"stage"}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_delivered_total",
			Help:      "Articles delivered in Telegram digests.",
		}),
		pruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_pruned_total",
			Help:      "Sent-article records removed by retention cleanup.",
		}),
		keywordHits: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keyword_matches",
			Help:      "Matched articles per keyword in the last run.",
		}, []string{"keyword"}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without error.",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last run.",
		}),
	}
}

// Observe учитывает итоги одного запуска.
func (r *Recorder) Observe(report news.RunReport, runErr error, elapsed time.Duration, finished time.Time) {
	r.runs.WithLabelValues(outcome(report, runErr)).Inc()
	r.duration.Set(elapsed.Seconds())

	r.articles.WithLabelValues("fetched").Set(float64(report.Fetched))
	r.articles.WithLabelValues("matched").Set(float64(report.Matched))
	r.articles.WithLabelValues("new").Set(float64(report.New))
	r.articles.WithLabelValues("digest").Set(float64(len(report.Digest)))

	r.keywordHits.Reset()
	for kw, n := range report.Keywords {
		r.keywordHits.WithLabelValues(kw).Set(float64(n))
	}

	if report.Delivered {
		r.delivered.Add(float64(len(report.Digest)))
	}
	r.pruned.Add(float64(report.Pruned))

	if runErr == nil {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

// WriteTextfile атомарно записывает показатели в файл для node_exporter.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

func outcome(report news.RunReport, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "interrupted"
	case err != nil:
		return "error"
	case report.Delivered:
		return "delivered"
	case len(report.Digest) > 0:
		return "delivery_failed"
	default:
		return "noop"
	}
}
