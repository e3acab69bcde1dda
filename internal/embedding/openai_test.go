package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIServer(t *testing.T, status int, vector []float32) (*httptest.Server, *map[string]any) {
	t.Helper()
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vector},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestOpenAIEmbedderEmbed(t *testing.T) {
	srv, captured := newOpenAIServer(t, http.StatusOK, []float32{0.25, -0.5, 1})

	e, err := NewOpenAIEmbedder("test-key", srv.URL+"/v1", "", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, "openai:text-embedding-3-small", e.Name())

	v, err := e.Embed(context.Background(), "submit taxes")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, v)

	req := *captured
	assert.Equal(t, "text-embedding-3-small", req["model"])
	assert.EqualValues(t, 3, req["dimensions"])
	assert.Equal(t, []any{"submit taxes"}, req["input"])
}

func TestOpenAIEmbedderServerError(t *testing.T) {
	srv, _ := newOpenAIServer(t, http.StatusInternalServerError, nil)

	e, err := NewOpenAIEmbedder("test-key", srv.URL+"/v1", "text-embedding-3-small", 0)
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimensions())

	_, err = e.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "openai embed")
}

func TestNewOpenAIEmbedderValidation(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "", "", 0)
	assert.Error(t, err)

	_, err = NewOpenAIEmbedder("k", "", "custom-model", 0)
	assert.Error(t, err, "unknown model needs explicit dimensions")

	e, err := NewOpenAIEmbedder("k", "", "text-embedding-3-large", 0)
	require.NoError(t, err)
	assert.Equal(t, 3072, e.Dimensions())
}

func TestNewGenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewGenAIEmbedder(context.Background(), "", "", 0)
	assert.Error(t, err)
}
