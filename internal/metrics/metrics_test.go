package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		predictionsTotal == nil || predictionFailuresTotal == nil ||
		embeddingCacheTotal == nil || modelLoaded == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservePrediction(t *testing.T) {
	before := testutil.ToFloat64(predictionsTotalFor("high"))
	ObservePrediction("high", 15*time.Millisecond)
	if got := testutil.ToFloat64(predictionsTotalFor("high")); got != before+1 {
		t.Errorf("expected priority_predictions_total{high} to be %f, got %f", before+1, got)
	}
	if val := testutil.CollectAndCount(predictionDurationSeconds); val <= 0 {
		t.Errorf("expected prediction duration to be observed, got %d", val)
	}
}

func TestObservePredictionFailure(t *testing.T) {
	Init()
	before := testutil.ToFloat64(predictionFailuresTotal.WithLabelValues("embed"))
	ObservePredictionFailure("embed")
	if got := testutil.ToFloat64(predictionFailuresTotal.WithLabelValues("embed")); got != before+1 {
		t.Errorf("expected failure counter to increase by 1, got %f -> %f", before, got)
	}
}

func TestObserveEmbeddingCacheAndRateLimit(t *testing.T) {
	Init()
	hits := testutil.ToFloat64(embeddingCacheTotal.WithLabelValues("hit"))
	limited := testutil.ToFloat64(rateLimitedTotal)

	ObserveEmbeddingCache("hit")
	ObserveRateLimited()

	if got := testutil.ToFloat64(embeddingCacheTotal.WithLabelValues("hit")); got != hits+1 {
		t.Errorf("expected cache hit counter %f, got %f", hits+1, got)
	}
	if got := testutil.ToFloat64(rateLimitedTotal); got != limited+1 {
		t.Errorf("expected rate limited counter %f, got %f", limited+1, got)
	}
}

func TestSetModelLoaded(t *testing.T) {
	SetModelLoaded(true)
	if got := testutil.ToFloat64(modelLoaded); got != 1 {
		t.Errorf("expected gauge 1, got %f", got)
	}
	SetModelLoaded(false)
	if got := testutil.ToFloat64(modelLoaded); got != 0 {
		t.Errorf("expected gauge 0, got %f", got)
	}
}

func predictionsTotalFor(label string) prometheus.Counter {
	Init()
	return predictionsTotal.WithLabelValues(label)
}
