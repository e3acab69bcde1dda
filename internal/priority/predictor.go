package priority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/task-priority-api/internal/logging"
	"github.com/JakeFAU/task-priority-api/internal/metrics"
	"github.com/JakeFAU/task-priority-api/internal/telemetry"
)

// Config controls Predictor behavior.
type Config struct {
	// Topic receives prediction events when a Publisher is configured.
	Topic string
	// Location is the time zone due dates are interpreted in. Defaults to UTC.
	Location *time.Location
	// ModelChecksum is attached to every Prediction for traceability.
	ModelChecksum string
	// SideEffectTimeout bounds the audit record and event publish that run
	// after each prediction. Defaults to DefaultSideEffectTimeout.
	SideEffectTimeout time.Duration
}

// DefaultSideEffectTimeout is used when Config.SideEffectTimeout is unset.
const DefaultSideEffectTimeout = 5 * time.Second

// Predictor runs the validate, embed, classify, decode pipeline. All of its
// dependencies are read-only after construction, so one Predictor serves
// concurrent requests.
type Predictor struct {
	classifier Classifier
	labels     LabelEncoder
	embedder   Embedder
	clock      Clock
	idGen      IDGenerator
	recorder   Recorder
	publisher  Publisher
	cfg        Config
	logger     *zap.Logger
	pending    sync.WaitGroup
}

// NewPredictor wires a Predictor and checks that the embedder output plus the
// optional day-count feature matches the classifier's input width.
// recorder, publisher and idGen may be nil.
func NewPredictor(
	classifier Classifier,
	labels LabelEncoder,
	embedder Embedder,
	clock Clock,
	idGen IDGenerator,
	recorder Recorder,
	publisher Publisher,
	cfg Config,
	logger *zap.Logger,
) (*Predictor, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if labels == nil {
		return nil, errors.New("label encoder is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = DefaultSideEffectTimeout
	}
	want := embedder.Dimensions()
	if classifier.UsesDueDate() {
		want++
	}
	if want != classifier.FeatureDim() {
		return nil, fmt.Errorf(
			"embedder %s yields %d features but classifier expects %d",
			embedder.Name(), want, classifier.FeatureDim(),
		)
	}
	return &Predictor{
		classifier: classifier,
		labels:     labels,
		embedder:   embedder,
		clock:      clock,
		idGen:      idGen,
		recorder:   recorder,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Predict validates req and returns the predicted priority. Errors wrapping
// ErrInvalidInput are caused by the request; anything else is an inference
// failure.
func (p *Predictor) Predict(ctx context.Context, req Request) (_ Prediction, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "priority.Predict")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "prediction failed")
		}
		span.End()
	}()
	start := time.Now()
	logger := logging.FromContext(ctx, p.logger)

	in, err := p.validate(req)
	if err != nil {
		metrics.ObservePredictionFailure("validate")
		return Prediction{}, err
	}

	embedding, err := p.embedder.Embed(ctx, in.Text)
	if err != nil {
		metrics.ObservePredictionFailure("embed")
		return Prediction{}, fmt.Errorf("embed text: %w", err)
	}
	if len(embedding) != p.embedder.Dimensions() {
		metrics.ObservePredictionFailure("embed")
		return Prediction{}, fmt.Errorf(
			"embedder %s returned %d dimensions, expected %d",
			p.embedder.Name(), len(embedding), p.embedder.Dimensions(),
		)
	}

	now := p.clock.Now().In(p.cfg.Location)
	var days *int
	if p.classifier.UsesDueDate() {
		d := DaysUntil(*in.DueDate, now)
		days = &d
	}

	class, err := p.classifier.Predict(BuildFeatures(embedding, days))
	if err != nil {
		metrics.ObservePredictionFailure("classify")
		return Prediction{}, fmt.Errorf("classify: %w", err)
	}
	label, err := p.labels.Decode(class)
	if err != nil {
		metrics.ObservePredictionFailure("decode")
		return Prediction{}, fmt.Errorf("decode class %d: %w", class, err)
	}

	prediction := Prediction{
		Priority:      label,
		Class:         class,
		DaysUntilDue:  days,
		Embedder:      p.embedder.Name(),
		ModelChecksum: p.cfg.ModelChecksum,
		TextLength:    len(in.Text),
		PredictedAt:   now,
	}
	if p.idGen != nil {
		if id, idErr := p.idGen.NewID(); idErr != nil {
			logger.Warn("prediction id generation failed", zap.Error(idErr))
		} else {
			prediction.ID = id
		}
	}

	span.SetAttributes(
		attribute.String("priority.label", label),
		attribute.Int("priority.class", class),
		attribute.String("priority.embedder", prediction.Embedder),
	)
	metrics.ObservePrediction(label, time.Since(start))
	logger.Debug("prediction complete",
		zap.String("priority", label),
		zap.Int("class", class),
		zap.Duration("duration", time.Since(start)),
	)

	p.persistAndPublish(ctx, logger, prediction)
	return prediction, nil
}

// Info describes the wired model.
func (p *Predictor) Info() ModelInfo {
	return ModelInfo{
		Labels:      p.labels.Labels(),
		FeatureDim:  p.classifier.FeatureDim(),
		UsesDueDate: p.classifier.UsesDueDate(),
		Embedder:    p.embedder.Name(),
		Dimensions:  p.embedder.Dimensions(),
		Checksum:    p.cfg.ModelChecksum,
	}
}

func (p *Predictor) validate(req Request) (Input, error) {
	requireDue := p.classifier.UsesDueDate()
	if requireDue && !req.Structured() {
		return Input{}, invalidInput("Missing required fields: task, description, due_date")
	}
	return req.Validate(requireDue, p.cfg.Location)
}

// persistAndPublish hands the audit record and event to a background
// goroutine. It never blocks the caller and its failures are only logged.
func (p *Predictor) persistAndPublish(ctx context.Context, logger *zap.Logger, prediction Prediction) {
	record := p.recorder != nil
	publish := p.publisher != nil && p.cfg.Topic != ""
	if !record && !publish {
		return
	}
	event := Event{
		Type:       EventTypePredictionCreated,
		RequestID:  logging.RequestID(ctx),
		Prediction: prediction,
	}
	// Detached from the request so a finished response does not cancel it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SideEffectTimeout)

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		defer cancel()
		if record {
			if err := p.recorder.Record(ctx, prediction); err != nil {
				logger.Warn("record prediction failed", zap.String("prediction_id", prediction.ID), zap.Error(err))
			}
		}
		if publish {
			if _, err := p.publisher.Publish(ctx, p.cfg.Topic, event); err != nil {
				logger.Warn("publish prediction failed", zap.String("prediction_id", prediction.ID), zap.Error(err))
			}
		}
	}()
}

// Drain waits for in-flight audit records and events, or until ctx is done.
func (p *Predictor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain prediction side effects: %w", ctx.Err())
	}
}
