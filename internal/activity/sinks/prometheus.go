package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/rayin-translation/internal/activity"
)

// PrometheusSink exports activity counters and fetch latencies.
type PrometheusSink struct {
	events        *prometheus.CounterVec
	chapterViews  prometheus.Counter
	fetchDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rayin_activity_events_total",
			Help: "Activity events partitioned by kind and result.",
		}, []string{"kind", "result"}),
		chapterViews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rayin_chapter_views_total",
			Help: "Chapter views recorded.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rayin_fetch_duration_seconds",
			Help:    "Backend fetch duration partitioned by kind.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"kind"}),
	}
	for _, collector := range []prometheus.Collector{s.events, s.chapterViews, s.fetchDuration} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register activity collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []activity.Event) error {
	for _, evt := range batch {
		result := "ok"
		if evt.Failed {
			result = "error"
		}
		s.events.WithLabelValues(string(evt.Kind), result).Inc()
		switch evt.Kind {
		case activity.KindChapterView:
			s.chapterViews.Add(float64(evt.Count))
		case activity.KindNovelFetch, activity.KindChapterFetch, activity.KindHomeFetch:
			if evt.Dur > 0 {
				s.fetchDuration.WithLabelValues(string(evt.Kind)).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
