package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ObjectReader fetches raw artifact bytes by path.
type ObjectReader interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Hasher computes digests for artifact integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Spec locates a model artifact and its optional label encoder.
type Spec struct {
	Path               string
	LabelEncoderPath   string
	SHA256             string
	LabelEncoderSHA256 string
}

// Bundle is everything a predictor needs from disk.
type Bundle struct {
	Classifier *LinearClassifier
	Labels     *LabelEncoder
	Embedding  EmbeddingSpec
	Checksum   string
}

// ErrChecksumMismatch is returned when an artifact digest differs from the expected one.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Loader reads and validates model bundles.
type Loader struct {
	source ObjectReader
	hasher Hasher
	logger *zap.Logger
}

// NewLoader constructs a Loader.
func NewLoader(source ObjectReader, hasher Hasher, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{source: source, hasher: hasher, logger: logger}
}

// Load fetches, verifies and decodes the artifact described by spec.
func (l *Loader) Load(ctx context.Context, spec Spec) (*Bundle, error) {
	if l.source == nil {
		return nil, errors.New("model source is not configured")
	}
	if strings.TrimSpace(spec.Path) == "" {
		return nil, errors.New("model path is required")
	}

	raw, checksum, err := l.fetch(ctx, spec.Path, spec.SHA256)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", spec.Path, err)
	}
	artifact, err := ParseArtifact(raw)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", spec.Path, err)
	}
	classifier, err := NewLinearClassifier(artifact)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	labels, err := l.loadLabels(ctx, spec, artifact)
	if err != nil {
		return nil, err
	}
	for _, class := range classifier.Classes() {
		if _, err := labels.Decode(class); err != nil {
			return nil, fmt.Errorf("label encoder does not cover class %d: %w", class, err)
		}
	}

	l.logger.Info("model loaded",
		zap.String("path", spec.Path),
		zap.String("checksum", checksum),
		zap.Int("feature_dim", classifier.FeatureDim()),
		zap.Bool("uses_due_date", classifier.UsesDueDate()),
		zap.Strings("labels", labels.Labels()),
		zap.String("embedding_provider", artifact.Embedding.Provider),
	)
	embedding := artifact.Embedding
	if embedding.Dimensions == 0 {
		embedding.Dimensions = artifact.EmbeddingWidth()
	}
	return &Bundle{
		Classifier: classifier,
		Labels:     labels,
		Embedding:  embedding,
		Checksum:   checksum,
	}, nil
}

func (l *Loader) loadLabels(ctx context.Context, spec Spec, artifact Artifact) (*LabelEncoder, error) {
	if strings.TrimSpace(spec.LabelEncoderPath) == "" {
		if len(artifact.Labels) == 0 {
			return nil, errors.New("model has no inline labels and no label encoder path is configured")
		}
		return NewLabelEncoder(artifact.Labels)
	}
	raw, _, err := l.fetch(ctx, spec.LabelEncoderPath, spec.LabelEncoderSHA256)
	if err != nil {
		return nil, fmt.Errorf("load label encoder %s: %w", spec.LabelEncoderPath, err)
	}
	labels, err := ParseLabelEncoder(raw)
	if err != nil {
		return nil, fmt.Errorf("load label encoder %s: %w", spec.LabelEncoderPath, err)
	}
	return labels, nil
}

func (l *Loader) fetch(ctx context.Context, path, expected string) ([]byte, string, error) {
	data, err := l.source.GetObject(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("read object: %w", err)
	}
	if l.hasher == nil {
		return data, "", nil
	}
	sum, err := l.hasher.Hash(data)
	if err != nil {
		return nil, "", fmt.Errorf("hash object: %w", err)
	}
	if expected != "" && !strings.EqualFold(expected, sum) {
		return nil, "", fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, sum)
	}
	return data, sum, nil
}

// ExecutableDir returns the directory holding the running binary.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
