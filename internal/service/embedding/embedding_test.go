package embedding

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openargument/reasonrank/internal/config"
	"github.com/openargument/reasonrank/internal/testutil"
)

func TestOllamaProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vec := make([]float32, 1024)
		for i := range vec {
			vec[i] = float32(i) * 0.001
		}
		require.NoError(t, json.NewEncoder(w).Encode(ollamaResponse{Embedding: vec}))
	}))
	defer server.Close()

	p := NewOllama(server.URL, "test-model", 1024)
	assert.Equal(t, 1024, p.Dimensions())

	t.Run("single", func(t *testing.T) {
		vec, err := p.Embed(t.Context(), "carbon taxes reduce emissions")
		require.NoError(t, err)
		require.Len(t, vec, 1024)
		assert.InDelta(t, 0.1, vec[100], 1e-6)
	})

	t.Run("batch", func(t *testing.T) {
		vecs, err := p.EmbedBatch(t.Context(), []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		for _, vec := range vecs {
			assert.Len(t, vec, 1024)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		vecs, err := p.EmbedBatch(t.Context(), nil)
		require.NoError(t, err)
		assert.Nil(t, vecs)
	})
}

func TestOllamaProviderErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := NewOllama(server.URL, "test-model", 1024).Embed(t.Context(), "x")
		require.Error(t, err)
	})

	t.Run("empty embedding", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(ollamaResponse{})
		}))
		defer server.Close()

		_, err := NewOllama(server.URL, "test-model", 1024).Embed(t.Context(), "x")
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		_, err := NewOllama(server.URL, "test-model", 1024).Embed(t.Context(), "x")
		require.Error(t, err)
	})
}

func TestNoopProvider(t *testing.T) {
	p := NewNoop(8)
	vec, err := p.Embed(t.Context(), "anything")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vec)

	vecs, err := p.EmbedBatch(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
}

func TestFromConfigAutoSelection(t *testing.T) {
	logger := testutil.TestLogger()

	cfg := &config.Config{EmbeddingProvider: "auto", EmbeddingDimensions: 1024}
	_, ok := FromConfig(cfg, logger).(*Noop)
	assert.True(t, ok, "no credentials selects noop")

	cfg.OpenAIAPIKey = "sk-test"
	_, ok = FromConfig(cfg, logger).(*OpenAI)
	assert.True(t, ok, "api key selects openai")

	cfg.OllamaURL = "http://localhost:11434"
	cfg.OllamaModel = "mxbai-embed-large"
	_, ok = FromConfig(cfg, logger).(*Ollama)
	assert.True(t, ok, "ollama wins when both are configured")
}
