package priority

import (
	"context"
	"time"
)

// Classifier maps a feature vector to a class index.
type Classifier interface {
	Predict(features []float64) (int, error)
	// FeatureDim is the length of the vector Predict expects.
	FeatureDim() int
	// UsesDueDate reports whether the last feature is the due-date day count.
	UsesDueDate() bool
}

// LabelEncoder decodes class indices into human-readable priority names.
type LabelEncoder interface {
	Decode(class int) (string, error)
	Labels() []string
}

// Embedder converts free text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// Recorder persists completed predictions (audit trail).
type Recorder interface {
	Record(ctx context.Context, prediction Prediction) error
}

// Publisher pushes prediction events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces prediction IDs.
type IDGenerator interface {
	NewID() (string, error)
}
