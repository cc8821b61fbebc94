// Package metrics exposes Prometheus collectors for the reader service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal        *prometheus.CounterVec
	fetchDurationSeconds      *prometheus.HistogramVec
	syncDocumentsTotal        *prometheus.CounterVec
	transformChunksTotal      *prometheus.CounterVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec
	activeSyncs               prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times; Observe
// functions are no-ops until it runs.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reader_fetch_attempts_total",
				Help: "Fetch attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reader_fetch_duration_seconds",
				Help:    "Histogram of per-strategy fetch latencies.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		)

		syncDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reader_sync_documents_total",
				Help: "Documents processed by sync runs, labeled by result.",
			},
			[]string{"result"},
		)

		transformChunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reader_transform_chunks_total",
				Help: "Transform chunk completions, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeSyncs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reader_active_syncs",
				Help: "Number of URLs currently being synced.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one strategy attempt.
func ObserveFetch(strategy, outcome string, duration time.Duration) {
	if fetchAttemptsTotal == nil {
		return
	}
	fetchAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveSync records the result of one synced URL.
func ObserveSync(result string) {
	if syncDocumentsTotal == nil {
		return
	}
	syncDocumentsTotal.WithLabelValues(result).Inc()
}

// ObserveTransformChunk records one chunk transform completion.
func ObserveTransformChunk(result string) {
	if transformChunksTotal == nil {
		return
	}
	transformChunksTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveSyncs increments the in-flight sync gauge.
func IncActiveSyncs() {
	if activeSyncs != nil {
		activeSyncs.Inc()
	}
}

// DecActiveSyncs decrements the in-flight sync gauge.
func DecActiveSyncs() {
	if activeSyncs != nil {
		activeSyncs.Dec()
	}
}
