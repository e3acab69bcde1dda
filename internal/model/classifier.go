package model

import (
	"fmt"
)

// LinearClassifier evaluates a linear decision function and returns the
// winning class. It is immutable and safe for concurrent use.
type LinearClassifier struct {
	coef        [][]float64
	intercept   []float64
	classes     []int
	usesDueDate bool
}

// NewLinearClassifier builds a classifier from a validated artifact.
func NewLinearClassifier(a Artifact) (*LinearClassifier, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	classes := a.Classes
	if len(classes) == 0 {
		classes = make([]int, a.NumClasses())
		for i := range classes {
			classes[i] = i
		}
	}
	coef := make([][]float64, len(a.Coef))
	for i, row := range a.Coef {
		coef[i] = append([]float64(nil), row...)
	}
	return &LinearClassifier{
		coef:        coef,
		intercept:   append([]float64(nil), a.Intercept...),
		classes:     append([]int(nil), classes...),
		usesDueDate: a.UsesDueDate,
	}, nil
}

// Predict returns the class with the highest decision score. Binary models
// pick classes[1] when the score is strictly positive. Ties go to the lowest
// index.
func (c *LinearClassifier) Predict(features []float64) (int, error) {
	if len(features) != c.FeatureDim() {
		return 0, fmt.Errorf("got %d features, expected %d", len(features), c.FeatureDim())
	}
	scores := c.DecisionFunction(features)
	if len(scores) == 1 {
		if scores[0] > 0 {
			return c.classes[1], nil
		}
		return c.classes[0], nil
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return c.classes[best], nil
}

// DecisionFunction returns coef·x + intercept for each row.
func (c *LinearClassifier) DecisionFunction(features []float64) []float64 {
	scores := make([]float64, len(c.coef))
	for i, row := range c.coef {
		s := c.intercept[i]
		for j, w := range row {
			s += w * features[j]
		}
		scores[i] = s
	}
	return scores
}

// FeatureDim implements priority.Classifier.
func (c *LinearClassifier) FeatureDim() int {
	return len(c.coef[0])
}

// UsesDueDate implements priority.Classifier.
func (c *LinearClassifier) UsesDueDate() bool {
	return c.usesDueDate
}

// Classes returns a copy of the class indices.
func (c *LinearClassifier) Classes() []int {
	return append([]int(nil), c.classes...)
}
