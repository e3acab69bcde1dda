package priority_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/task-priority-api/internal/config"
	"github.com/JakeFAU/task-priority-api/internal/logging"
	"github.com/JakeFAU/task-priority-api/internal/priority"
	"github.com/JakeFAU/task-priority-api/internal/publisher/memory"
	"github.com/JakeFAU/task-priority-api/internal/telemetry"
)

type fakeClassifier struct {
	dim     int
	usesDue bool
	class   int
	err     error
	got     []float64
}

func (c *fakeClassifier) Predict(features []float64) (int, error) {
	c.got = features
	return c.class, c.err
}

func (c *fakeClassifier) FeatureDim() int   { return c.dim }
func (c *fakeClassifier) UsesDueDate() bool { return c.usesDue }

type fakeLabels []string

func (l fakeLabels) Decode(class int) (string, error) {
	if class < 0 || class >= len(l) {
		return "", fmt.Errorf("class %d out of range", class)
	}
	return l[class], nil
}

func (l fakeLabels) Labels() []string { return l }

type fakeEmbedder struct {
	vec []float32
	dim int
	err error
	got string
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.got = text
	return e.vec, e.err
}

func (e *fakeEmbedder) Dimensions() int { return e.dim }
func (e *fakeEmbedder) Name() string    { return "fake" }

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type fakeIDs struct{ err error }

func (g fakeIDs) NewID() (string, error) { return "pred-1", g.err }

type fakeRecorder struct {
	err  error
	seen []priority.Prediction
}

func (r *fakeRecorder) Record(_ context.Context, p priority.Prediction) error {
	r.seen = append(r.seen, p)
	return r.err
}

var testNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func newPredictor(t *testing.T, c *fakeClassifier, e *fakeEmbedder, rec priority.Recorder, pub priority.Publisher) *priority.Predictor {
	t.Helper()
	p, err := priority.NewPredictor(
		c, fakeLabels{"high", "low", "medium"}, e, fixedClock(testNow), fakeIDs{}, rec, pub,
		priority.Config{Topic: "predictions", ModelChecksum: "abc"}, zap.NewNop(),
	)
	require.NoError(t, err)
	return p
}

func TestNewPredictorChecksFeatureWidth(t *testing.T) {
	_, err := priority.NewPredictor(
		&fakeClassifier{dim: 4, usesDue: true}, fakeLabels{"a"}, &fakeEmbedder{dim: 4},
		fixedClock(testNow), nil, nil, nil, priority.Config{}, nil,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yields 5 features but classifier expects 4")

	_, err = priority.NewPredictor(nil, fakeLabels{"a"}, &fakeEmbedder{dim: 4}, fixedClock(testNow), nil, nil, nil, priority.Config{}, nil)
	assert.Error(t, err)
}

func TestPredictStructured(t *testing.T) {
	c := &fakeClassifier{dim: 3, usesDue: true, class: 0}
	e := &fakeEmbedder{dim: 2, vec: []float32{0.5, -0.5}}
	rec := &fakeRecorder{}
	pub := memory.New()
	p := newPredictor(t, c, e, rec, pub)

	ctx := logging.WithRequestID(context.Background(), "req-42")
	got, err := p.Predict(ctx, priority.Request{Task: "File taxes", Description: "federal", DueDate: "2025-01-12"})
	require.NoError(t, err)

	assert.Equal(t, "high", got.Priority)
	assert.Equal(t, "pred-1", got.ID)
	assert.Equal(t, "abc", got.ModelChecksum)
	assert.Equal(t, "fake", got.Embedder)
	assert.Equal(t, "File taxes federal", e.got)
	require.NotNil(t, got.DaysUntilDue)
	assert.Equal(t, 1, *got.DaysUntilDue)
	assert.Equal(t, []float64{0.5, -0.5, 1}, c.got)

	require.NoError(t, p.Drain(context.Background()))
	require.Len(t, rec.seen, 1)
	assert.Equal(t, got, rec.seen[0])

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, priority.EventTypePredictionCreated, events[0].Type)
	assert.Equal(t, "req-42", events[0].RequestID)
	assert.Equal(t, "high", events[0].Prediction.Priority)
}

func TestPredictFreeTextModel(t *testing.T) {
	c := &fakeClassifier{dim: 2, class: 2}
	p := newPredictor(t, c, &fakeEmbedder{dim: 2, vec: []float32{1, 0}}, nil, nil)

	got, err := p.Predict(context.Background(), priority.Request{Text: "buy milk"})
	require.NoError(t, err)
	assert.Equal(t, "medium", got.Priority)
	assert.Nil(t, got.DaysUntilDue)
	assert.Equal(t, []float64{1, 0}, c.got)
}

func TestPredictRequiresStructuredShapeForDueDateModels(t *testing.T) {
	p := newPredictor(t, &fakeClassifier{dim: 3, usesDue: true}, &fakeEmbedder{dim: 2, vec: []float32{0, 0}}, nil, nil)

	_, err := p.Predict(context.Background(), priority.Request{Text: "buy milk"})
	require.Error(t, err)
	var inputErr *priority.InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "Missing required fields: task, description, due_date", inputErr.Message)
}

func TestPredictInferenceFailures(t *testing.T) {
	req := priority.Request{Text: "buy milk"}
	tests := []struct {
		name string
		c    *fakeClassifier
		e    *fakeEmbedder
	}{
		{name: "embed error", c: &fakeClassifier{dim: 2}, e: &fakeEmbedder{dim: 2, err: errors.New("quota")}},
		{name: "short embedding", c: &fakeClassifier{dim: 2}, e: &fakeEmbedder{dim: 2, vec: []float32{1}}},
		{name: "classify error", c: &fakeClassifier{dim: 2, err: errors.New("nan")}, e: &fakeEmbedder{dim: 2, vec: []float32{1, 1}}},
		{name: "unknown class", c: &fakeClassifier{dim: 2, class: 7}, e: &fakeEmbedder{dim: 2, vec: []float32{1, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			p := newPredictor(t, tt.c, tt.e, rec, nil)
			_, err := p.Predict(context.Background(), req)
			require.Error(t, err)
			assert.NotErrorIs(t, err, priority.ErrInvalidInput)
			require.NoError(t, p.Drain(context.Background()))
			assert.Empty(t, rec.seen)
		})
	}
}

func TestPredictIgnoresSideChannelFailures(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	pub := memory.NewFailing(errors.New("pubsub down"))
	p := newPredictor(t, &fakeClassifier{dim: 2, class: 1}, &fakeEmbedder{dim: 2, vec: []float32{1, 1}}, rec, pub)

	got, err := p.Predict(context.Background(), priority.Request{Text: "buy milk"})
	require.NoError(t, err)
	assert.Equal(t, "low", got.Priority)
	require.NoError(t, p.Drain(context.Background()))
	assert.Len(t, rec.seen, 1)
}

func TestPredictIsDeterministic(t *testing.T) {
	p := newPredictor(t, &fakeClassifier{dim: 2, class: 1}, &fakeEmbedder{dim: 2, vec: []float32{1, 1}}, nil, nil)
	req := priority.Request{Text: "buy milk"}

	first, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInfo(t *testing.T) {
	p := newPredictor(t, &fakeClassifier{dim: 3, usesDue: true}, &fakeEmbedder{dim: 2}, nil, nil)
	info := p.Info()
	assert.Equal(t, []string{"high", "low", "medium"}, info.Labels)
	assert.Equal(t, 3, info.FeatureDim)
	assert.True(t, info.UsesDueDate)
	assert.Equal(t, 2, info.Dimensions)
	assert.Equal(t, "abc", info.Checksum)
}

func TestPredictRecordsSpan(t *testing.T) {
	prev := otel.GetTracerProvider()
	recorder := tracetest.NewSpanRecorder()
	tp, err := telemetry.InitTracerProvider(context.Background(), config.TelemetryConfig{ServiceName: "test", SampleRatio: 1}, recorder)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	p := newPredictor(t, &fakeClassifier{dim: 2, class: 1}, &fakeEmbedder{dim: 2, vec: []float32{1, 1}}, nil, nil)
	_, err = p.Predict(context.Background(), priority.Request{Text: "buy milk"})
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), priority.Request{})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "priority.Predict", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

// blockingRecorder holds every Record call until release is closed or the
// call's context ends.
type blockingRecorder struct {
	release chan struct{}
	mu      sync.Mutex
	errs    []error
	reqIDs  []string
}

func (r *blockingRecorder) Record(ctx context.Context, _ priority.Prediction) error {
	var err error
	select {
	case <-r.release:
	case <-ctx.Done():
		err = ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.reqIDs = append(r.reqIDs, logging.RequestID(ctx))
	return err
}

func TestPredictDoesNotWaitForRecorder(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	p := newPredictor(t, &fakeClassifier{dim: 2, class: 1}, &fakeEmbedder{dim: 2, vec: []float32{1, 1}}, rec, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Predict(context.Background(), priority.Request{Text: "fix prod outage"})
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(rec.release)
		t.Fatal("Predict blocked on the audit recorder")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Drain(drainCtx), context.DeadlineExceeded, "record still pending")

	close(rec.release)
	require.NoError(t, p.Drain(context.Background()))
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []error{nil}, rec.errs)
}

func TestSideEffectsOutliveRequestButAreBounded(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	p, err := priority.NewPredictor(
		&fakeClassifier{dim: 2, class: 1}, fakeLabels{"high", "low", "medium"}, &fakeEmbedder{dim: 2, vec: []float32{1, 1}},
		fixedClock(testNow), nil, rec, nil,
		priority.Config{SideEffectTimeout: 20 * time.Millisecond}, zap.NewNop(),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(logging.WithRequestID(context.Background(), "req-7"))
	_, err = p.Predict(ctx, priority.Request{Text: "fix prod outage"})
	require.NoError(t, err)
	cancel()

	require.NoError(t, p.Drain(context.Background()))
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], context.DeadlineExceeded, "ended by its own timeout, not the request")
	assert.Equal(t, []string{"req-7"}, rec.reqIDs)
}
