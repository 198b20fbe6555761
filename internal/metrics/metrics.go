// Package metrics exposes Prometheus collectors for the reader service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	cacheLookupsTotal          *prometheus.CounterVec
	prefetchTotal              *prometheus.CounterVec
	botPreviewsTotal           *prometheus.CounterVec
	translationsTotal          *prometheus.CounterVec
	translationTokensTotal     *prometheus.CounterVec
	translationDurationSeconds *prometheus.HistogramVec
	authEventsTotal            *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rayin_cache_lookups_total",
				Help: "Cache lookups, labeled by cache and result (hit, miss, stale).",
			},
			[]string{"cache", "result"},
		)

		prefetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rayin_prefetch_total",
				Help: "Prefetch requests, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		botPreviewsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rayin_bot_previews_total",
				Help: "Crawler preview requests, labeled by bot and outcome.",
			},
			[]string{"bot", "outcome"},
		)

		translationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rayin_translations_total",
				Help: "Streaming translations, labeled by model and status.",
			},
			[]string{"model", "status"},
		)

		translationTokensTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rayin_translation_tokens_total",
				Help: "Content deltas received from the completion stream, labeled by model.",
			},
			[]string{"model"},
		)

		translationDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rayin_translation_duration_seconds",
				Help:    "Wall time per streaming translation.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"model"},
		)

		authEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rayin_auth_events_total",
				Help: "Auth state changes, labeled by kind.",
			},
			[]string{"kind"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ModelLabel trims a provider-qualified model id to a bounded label value.
func ModelLabel(model string) string {
	model = strings.TrimSpace(strings.ToLower(model))
	if model == "" {
		return "unknown"
	}
	if len(model) > 64 {
		return model[:64]
	}
	return model
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCache records a cache lookup result.
func ObserveCache(cache, result string) {
	if cacheLookupsTotal == nil {
		return
	}
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// ObservePrefetch records whether a prefetch started or was skipped.
func ObservePrefetch(kind, outcome string) {
	if prefetchTotal == nil {
		return
	}
	prefetchTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveBotPreview records a crawler preview outcome.
func ObserveBotPreview(bot, outcome string) {
	if botPreviewsTotal == nil {
		return
	}
	botPreviewsTotal.WithLabelValues(bot, outcome).Inc()
}

// ObserveTranslation records a finished translation stream.
func ObserveTranslation(model, status string, tokens int, duration time.Duration) {
	if translationsTotal == nil {
		return
	}
	label := ModelLabel(model)
	translationsTotal.WithLabelValues(label, status).Inc()
	if tokens > 0 {
		translationTokensTotal.WithLabelValues(label).Add(float64(tokens))
	}
	translationDurationSeconds.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveAuthEvent records an auth state change.
func ObserveAuthEvent(kind string) {
	if authEventsTotal == nil {
		return
	}
	authEventsTotal.WithLabelValues(kind).Inc()
}
