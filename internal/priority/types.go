package priority

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire format of Request.DueDate.
const DateLayout = "2006-01-02"

// Well-known labels produced by the reference model.
const (
	LabelLow    = "low"
	LabelMedium = "medium"
	LabelHigh   = "high"
)

// ErrInvalidInput marks client input problems. Callers map it to HTTP 400.
var ErrInvalidInput = errors.New("invalid input")

// InputError carries a client-facing validation message and matches
// ErrInvalidInput under errors.Is.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Unwrap lets errors.Is(err, ErrInvalidInput) succeed.
func (e *InputError) Unwrap() error { return ErrInvalidInput }

func invalidInput(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// Request is the JSON body accepted by the predict endpoint. It carries both
// the free-text shape ({text}) and the structured shape
// ({task, description, due_date}).
type Request struct {
	Text        string `json:"text,omitempty"`
	Task        string `json:"task,omitempty"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// Input is a validated request, ready for feature construction.
type Input struct {
	Text    string
	DueDate *time.Time
}

// Prediction is the outcome of one successful inference.
type Prediction struct {
	ID            string    `json:"id"`
	Priority      string    `json:"priority"`
	Class         int       `json:"class"`
	DaysUntilDue  *int      `json:"days_until_due,omitempty"`
	Embedder      string    `json:"embedder"`
	ModelChecksum string    `json:"model_checksum,omitempty"`
	TextLength    int       `json:"text_length"`
	PredictedAt   time.Time `json:"predicted_at"`
}

// Event is the payload published after a prediction.
type Event struct {
	Type       string     `json:"type"`
	RequestID  string     `json:"request_id,omitempty"`
	Prediction Prediction `json:"prediction"`
}

// EventTypePredictionCreated is the Event.Type for new predictions.
const EventTypePredictionCreated = "prediction.created"

// ModelInfo describes the loaded model for operators.
type ModelInfo struct {
	Labels      []string `json:"labels"`
	FeatureDim  int      `json:"feature_dim"`
	UsesDueDate bool     `json:"uses_due_date"`
	Embedder    string   `json:"embedder"`
	Dimensions  int      `json:"embedding_dimensions"`
	Checksum    string   `json:"checksum,omitempty"`
}
