package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/task-priority-api/internal/hash/sha256"
	"github.com/JakeFAU/task-priority-api/internal/logging"
	"github.com/JakeFAU/task-priority-api/internal/metrics"
	"github.com/JakeFAU/task-priority-api/internal/priority"
)

// Cache stores vectors by key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
}

// Cached memoizes an Embedder. Cache failures are logged and the inner
// embedder is called as if the cache were absent.
type Cached struct {
	inner  priority.Embedder
	cache  Cache
	logger *zap.Logger
}

// NewCached wraps inner with cache.
func NewCached(inner priority.Embedder, cache Cache, logger *zap.Logger) (*Cached, error) {
	if inner == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{inner: inner, cache: cache, logger: logger}, nil
}

// CacheKey derives the cache key for text under the named embedder.
func CacheKey(embedderName, text string) string {
	return sha256.New().Key(embedderName, text)
}

// Embed returns the cached vector for text or computes and stores it.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	logger := logging.FromContext(ctx, c.logger)
	key := CacheKey(c.inner.Name(), text)

	vector, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.ObserveEmbeddingCache("error")
		logger.Warn("embedding cache get failed", zap.Error(err))
	case ok && len(vector) == c.inner.Dimensions():
		metrics.ObserveEmbeddingCache("hit")
		return vector, nil
	default:
		metrics.ObserveEmbeddingCache("miss")
	}

	vector, err = c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vector); err != nil {
		metrics.ObserveEmbeddingCache("error")
		logger.Warn("embedding cache set failed", zap.Error(err))
	}
	return vector, nil
}

// Dimensions returns the inner embedder's width.
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Name returns the inner embedder's name so cached and uncached runs are
// indistinguishable downstream.
func (c *Cached) Name() string { return c.inner.Name() }
