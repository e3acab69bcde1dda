package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashingDimensions is used when no width is configured.
const DefaultHashingDimensions = 256

// HashingEmbedder maps unigrams and bigrams into signed hash buckets and
// L2-normalizes the result. It needs no network and is fully deterministic.
type HashingEmbedder struct {
	dims    int
	bigrams bool
}

// NewHashingEmbedder builds a HashingEmbedder with dims buckets.
func NewHashingEmbedder(dims int, bigrams bool) (*HashingEmbedder, error) {
	if dims == 0 {
		dims = DefaultHashingDimensions
	}
	if dims < 0 {
		return nil, fmt.Errorf("hashing dimensions must be positive, got %d", dims)
	}
	return &HashingEmbedder{dims: dims, bigrams: bigrams}, nil
}

// Embed hashes text into a vector of Dimensions() values.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("hashing embed: %w", err)
	}
	acc := make([]float64, e.dims)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		e.add(acc, tok)
		if e.bigrams && i > 0 {
			e.add(acc, tokens[i-1]+" "+tok)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, e.dims)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *HashingEmbedder) add(acc []float64, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum>>63 == 1 {
		acc[idx]--
		return
	}
	acc[idx]++
}

// Dimensions returns the vector width.
func (e *HashingEmbedder) Dimensions() int { return e.dims }

// Name returns "hashing".
func (e *HashingEmbedder) Name() string { return ProviderHashing }

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
