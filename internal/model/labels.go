package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// LabelEncoder maps class indices to label strings, like sklearn's
// LabelEncoder.classes_.
type LabelEncoder struct {
	classes []string
}

type labelEncoderFile struct {
	Classes []string `json:"classes"`
}

// NewLabelEncoder builds an encoder from an ordered label list.
func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, errors.New("label encoder has no classes")
	}
	seen := make(map[string]struct{}, len(classes))
	for i, c := range classes {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("label %d is empty", i)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("duplicate label %q", c)
		}
		seen[c] = struct{}{}
	}
	return &LabelEncoder{classes: append([]string(nil), classes...)}, nil
}

// ParseLabelEncoder decodes {"classes": [...]}.
func ParseLabelEncoder(data []byte) (*LabelEncoder, error) {
	var f labelEncoderFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode label encoder: %w", err)
	}
	return NewLabelEncoder(f.Classes)
}

// Decode implements priority.LabelEncoder.
func (e *LabelEncoder) Decode(class int) (string, error) {
	if class < 0 || class >= len(e.classes) {
		return "", fmt.Errorf("class %d out of range [0,%d)", class, len(e.classes))
	}
	return e.classes[class], nil
}

// Labels implements priority.LabelEncoder.
func (e *LabelEncoder) Labels() []string {
	return append([]string(nil), e.classes...)
}
