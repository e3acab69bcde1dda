package embedding

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultLRUSize is the entry count used when none is configured.
const DefaultLRUSize = 4096

// LRUCache is an in-process Cache bounded by entry count.
type LRUCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewLRUCache returns a cache holding at most size vectors.
func NewLRUCache(size int) *LRUCache {
	if size <= 0 {
		size = DefaultLRUSize
	}
	return &LRUCache{cache: lru.New(size)}
}

// Get returns a copy of the cached vector.
func (c *LRUCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	vector, _ := v.([]float32)
	return append([]float32(nil), vector...), true, nil
}

// Set stores a copy of vector.
func (c *LRUCache) Set(_ context.Context, key string, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, append([]float32(nil), vector...))
	return nil
}

// Len returns the number of cached vectors.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
