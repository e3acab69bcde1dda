// Package model loads externally trained priority classifiers and label
// encoders and exposes them as read-only inference objects.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// FormatLinearV1 identifies the JSON export of a linear sklearn estimator.
const FormatLinearV1 = "linear/v1"

// EmbeddingSpec records the text encoder a model was trained against.
type EmbeddingSpec struct {
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions"`
}

// Artifact is the on-disk model layout. Coef has one row per class, or a
// single row for binary models, matching sklearn's coef_/intercept_.
type Artifact struct {
	Format      string        `json:"format"`
	Coef        [][]float64   `json:"coef"`
	Intercept   []float64     `json:"intercept"`
	Classes     []int         `json:"classes,omitempty"`
	Labels      []string      `json:"labels,omitempty"`
	UsesDueDate bool          `json:"uses_due_date"`
	Embedding   EmbeddingSpec `json:"embedding"`
}

// ParseArtifact decodes and validates an artifact.
func ParseArtifact(data []byte) (Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// Validate checks format and matrix shapes.
func (a Artifact) Validate() error {
	if a.Format != FormatLinearV1 {
		return fmt.Errorf("unsupported artifact format %q", a.Format)
	}
	if len(a.Coef) == 0 {
		return errors.New("artifact has no coefficients")
	}
	width := len(a.Coef[0])
	if width == 0 {
		return errors.New("artifact coefficient rows are empty")
	}
	for i, row := range a.Coef {
		if len(row) != width {
			return fmt.Errorf("coef row %d has %d columns, expected %d", i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("coef row %d contains a non-finite value", i)
			}
		}
	}
	if len(a.Intercept) != len(a.Coef) {
		return fmt.Errorf("intercept has %d values, expected %d", len(a.Intercept), len(a.Coef))
	}
	for i, v := range a.Intercept {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("intercept %d is not finite", i)
		}
	}
	if n := a.NumClasses(); len(a.Classes) != 0 && len(a.Classes) != n {
		return fmt.Errorf("classes has %d entries, expected %d", len(a.Classes), n)
	}
	if len(a.Labels) != 0 && len(a.Labels) != a.NumClasses() {
		return fmt.Errorf("labels has %d entries, expected %d", len(a.Labels), a.NumClasses())
	}
	if a.UsesDueDate && width < 2 {
		return errors.New("due-date models need at least one embedding feature")
	}
	if a.Embedding.Dimensions != 0 && a.Embedding.Dimensions != a.EmbeddingWidth() {
		return fmt.Errorf(
			"embedding.dimensions is %d but coefficients imply %d",
			a.Embedding.Dimensions, a.EmbeddingWidth(),
		)
	}
	return nil
}

// NumClasses is the number of output classes (2 for single-row binary models).
func (a Artifact) NumClasses() int {
	if len(a.Coef) == 1 {
		return 2
	}
	return len(a.Coef)
}

// FeatureDim is the classifier input width.
func (a Artifact) FeatureDim() int {
	if len(a.Coef) == 0 {
		return 0
	}
	return len(a.Coef[0])
}

// EmbeddingWidth is the part of the input produced by the embedder.
func (a Artifact) EmbeddingWidth() int {
	if a.UsesDueDate {
		return a.FeatureDim() - 1
	}
	return a.FeatureDim()
}
