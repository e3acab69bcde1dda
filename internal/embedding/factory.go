package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/task-priority-api/internal/priority"
)

// Provider names accepted by New.
const (
	ProviderHashing = "hashing"
	ProviderOpenAI  = "openai"
	ProviderGenAI   = "genai"
)

// Cache backends accepted by NewCache.
const (
	CacheNone  = "none"
	CacheLRU   = "lru"
	CacheRedis = "redis"
)

// Config selects and parameterizes an encoder.
type Config struct {
	Provider   string
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
	// Bigrams enables bigram features for the hashing encoder.
	Bigrams bool
}

// CacheConfig selects the cache wrapped around the encoder.
type CacheConfig struct {
	Backend string
	Size    int
	Redis   RedisConfig
}

// New builds the configured encoder. When provider is empty the hashing
// encoder is used.
func New(ctx context.Context, cfg Config) (priority.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderHashing:
		return NewHashingEmbedder(cfg.Dimensions, cfg.Bigrams)
	case ProviderOpenAI:
		return NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case ProviderGenAI:
		return NewGenAIEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}
}

// NewCache builds the configured cache. A nil Cache means caching is off.
func NewCache(ctx context.Context, cfg CacheConfig) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", CacheNone:
		return nil, nil
	case CacheLRU:
		return NewLRUCache(cfg.Size), nil
	case CacheRedis:
		return NewRedisCache(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown embedding cache backend %q", cfg.Backend)
	}
}

// Wrap returns inner unchanged when cache is nil, otherwise a Cached embedder.
func Wrap(inner priority.Embedder, cache Cache, logger *zap.Logger) (priority.Embedder, error) {
	if cache == nil {
		return inner, nil
	}
	return NewCached(inner, cache, logger)
}

// CheckCompatible verifies that embedder matches the encoder a model was
// trained with. Empty provider or zero dimensions are not checked.
func CheckCompatible(embedder priority.Embedder, provider, model string, dims int) error {
	if dims != 0 && embedder.Dimensions() != dims {
		return fmt.Errorf("embedder %s yields %d dimensions, model expects %d", embedder.Name(), embedder.Dimensions(), dims)
	}
	if provider == "" {
		return nil
	}
	name := embedder.Name()
	if model == "" || provider == ProviderHashing {
		// Without a model name only the provider part of the name is compared.
		if gotProvider, _, _ := strings.Cut(name, ":"); gotProvider != provider {
			return fmt.Errorf("embedder %s does not match model encoder %s", name, provider)
		}
		return nil
	}
	if want := provider + ":" + model; name != want {
		return fmt.Errorf("embedder %s does not match model encoder %s", name, want)
	}
	return nil
}
