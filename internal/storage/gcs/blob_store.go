// Package gcs reads and writes model artifacts in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// MaxObjectBytes bounds GetObject reads. Zero means DefaultMaxObjectBytes.
	MaxObjectBytes int64
}

// DefaultMaxObjectBytes caps artifact downloads.
const DefaultMaxObjectBytes int64 = 256 << 20

// ErrObjectTooLarge is returned when an object exceeds MaxObjectBytes.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client   *storage.Client
	bucket   string
	maxBytes int64
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	maxBytes := cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	return &BlobStore{
		client:   client,
		bucket:   cfg.Bucket,
		maxBytes: maxBytes,
	}, nil
}

// GetObject downloads an object from the configured bucket. A gs://bucket/
// prefix on path is accepted when it names the configured bucket.
func (s *BlobStore) GetObject(ctx context.Context, path string) ([]byte, error) {
	object, err := s.objectName(path)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucket, object, err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(reader, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, object, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, object, ErrObjectTooLarge)
	}
	return data, nil
}

func (s *BlobStore) objectName(path string) (string, error) {
	path = strings.TrimSpace(path)
	if rest, ok := strings.CutPrefix(path, "gs://"); ok {
		bucket, object, found := strings.Cut(rest, "/")
		if !found || bucket != s.bucket {
			return "", fmt.Errorf("object %q is not in bucket %s", path, s.bucket)
		}
		path = object
	}
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	return path, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}
