// Package metrics exposes Prometheus collectors for the priority service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	predictionsTotal           *prometheus.CounterVec
	predictionFailuresTotal    *prometheus.CounterVec
	predictionDurationSeconds  prometheus.Histogram
	embeddingCacheTotal        *prometheus.CounterVec
	rateLimitedTotal           prometheus.Counter
	modelLoaded                prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every Observe helper calls it.
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
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		predictionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priority_predictions_total",
				Help: "Total number of successful predictions, labeled by predicted priority.",
			},
			[]string{"priority"},
		)

		predictionFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priority_prediction_failures_total",
				Help: "Total number of failed predictions, labeled by pipeline stage.",
			},
			[]string{"stage"},
		)

		predictionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "priority_prediction_duration_seconds",
				Help:    "Histogram of end-to-end prediction latency including embedding.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		)

		embeddingCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priority_embedding_cache_total",
				Help: "Embedding cache lookups, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		rateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "priority_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter.",
			},
		)

		modelLoaded = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "priority_model_loaded",
				Help: "1 when a model is loaded and predictions are served, 0 otherwise.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePrediction records a successful prediction.
func ObservePrediction(priority string, duration time.Duration) {
	Init()
	predictionsTotal.WithLabelValues(priority).Inc()
	predictionDurationSeconds.Observe(duration.Seconds())
}

// ObservePredictionFailure records a failed prediction at the given stage.
func ObservePredictionFailure(stage string) {
	Init()
	predictionFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveEmbeddingCache records a cache lookup result: "hit", "miss" or "error".
func ObserveEmbeddingCache(result string) {
	Init()
	embeddingCacheTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimited increments the rate limiter rejection counter.
func ObserveRateLimited() {
	Init()
	rateLimitedTotal.Inc()
}

// SetModelLoaded flips the model gauge.
func SetModelLoaded(loaded bool) {
	Init()
	if loaded {
		modelLoaded.Set(1)
		return
	}
	modelLoaded.Set(0)
}
