package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGenAIModel is used when no model is configured.
const DefaultGenAIModel = "gemini-embedding-001"

// DefaultGenAIDimensions is the output width requested when none is configured.
const DefaultGenAIDimensions = 768

const genAITaskClassification = "CLASSIFICATION"

// GenAIEmbedder generates embeddings using Google's Gemini API with the
// CLASSIFICATION task type.
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGenAIEmbedder creates a Gemini embedder.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string, dims int) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	if model == "" {
		model = DefaultGenAIModel
	}
	if dims <= 0 {
		dims = DefaultGenAIDimensions
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: model, dimensions: dims}, nil
}

// Embed generates an embedding for a single text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}
	outputDims := int32(e.dimensions) // #nosec G115 -- bounded by config validation.
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             genAITaskClassification,
		OutputDimensionality: &outputDims,
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, errors.New("GenAI embed: no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// Dimensions returns the requested output width.
func (e *GenAIEmbedder) Dimensions() int { return e.dimensions }

// Name returns "genai:<model>".
func (e *GenAIEmbedder) Name() string { return ProviderGenAI + ":" + e.model }
