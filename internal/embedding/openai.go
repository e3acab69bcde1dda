package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	// shorten is set when dimensions was requested explicitly and must be sent.
	shorten bool
}

// NewOpenAIEmbedder builds an embedder for model. baseURL overrides the API
// root (Azure, proxies, tests). A zero dims uses the model's native width.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dims int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	shorten := dims > 0
	if !shorten {
		dims = openAINativeDimensions(model)
		if dims == 0 {
			return nil, fmt.Errorf("embedding dimensions are required for OpenAI model %s", model)
		}
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dims,
		shorten:    shorten,
	}, nil
}

func openAINativeDimensions(model string) int {
	switch openai.EmbeddingModel(model) {
	case openai.SmallEmbedding3, openai.AdaEmbeddingV2:
		return 1536
	case openai.LargeEmbedding3:
		return 3072
	default:
		return 0
	}
}

// Embed requests one embedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.shorten {
		req.Dimensions = e.dimensions
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embed: no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the vector width.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Name returns "openai:<model>".
func (e *OpenAIEmbedder) Name() string { return ProviderOpenAI + ":" + e.model }
