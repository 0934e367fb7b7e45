// Package embedding generates sentence embeddings for claim and evidence
// statements. Embeddings feed the semantic similarity strategy that drives
// redundancy discounting, so providers are interchangeable behind a small
// interface: OpenAI for hosted deployments, Ollama for on-premises, and a
// noop fallback when neither is configured.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/openargument/reasonrank/internal/config"
)

// Provider turns statement text into embedding vectors.
type Provider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// FromConfig selects a provider based on configuration. "auto" prefers
// Ollama when an URL is set, then OpenAI when a key is present, and falls
// back to noop so scoring degrades to lexical similarity rather than
// failing.
func FromConfig(cfg *config.Config, logger *slog.Logger) Provider {
	choice := cfg.EmbeddingProvider
	if choice == "auto" {
		switch {
		case cfg.OllamaURL != "" && cfg.OllamaModel != "":
			choice = "ollama"
		case cfg.OpenAIAPIKey != "":
			choice = "openai"
		default:
			choice = "noop"
		}
	}

	switch choice {
	case "ollama":
		logger.Info("embedding provider selected", "provider", "ollama", "model", cfg.OllamaModel)
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDimensions)
	case "openai":
		logger.Info("embedding provider selected", "provider", "openai", "model", cfg.EmbeddingModel)
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		logger.Warn("no embedding provider configured, similarity falls back to lexical overlap")
		return NewNoop(cfg.EmbeddingDimensions)
	}
}

// OpenAI generates embeddings through the OpenAI embeddings API.
type OpenAI struct {
	apiKey     string
	model      string
	httpClient *http.Client
	dimensions int
}

// NewOpenAI creates an OpenAI-backed provider.
func NewOpenAI(apiKey, model string, dimensions int) *OpenAI {
	return &OpenAI{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		dimensions: dimensions,
	}
}

// Dimensions returns the embedding vector size.
func (p *OpenAI) Dimensions() int { return p.dimensions }

type openAIRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates a single embedding.
func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one API call.
func (p *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(openAIRequest{Input: texts, Model: p.model, Dimensions: p.dimensions})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("embedding: unmarshal response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("embedding: openai error: %s: %s", result.Error.Type, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	// The API may return entries out of order; place by index.
	vecs := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding: invalid index %d in response", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Noop returns zero vectors. Zero vectors carry no cosine signal, so the
// semantic strategy treats everything as distinct and lexical overlap
// carries the redundancy check.
type Noop struct {
	dims int
}

// NewNoop creates a provider that returns zero vectors.
func NewNoop(dims int) *Noop { return &Noop{dims: dims} }

// Dimensions returns the embedding vector size.
func (p *Noop) Dimensions() int { return p.dims }

// Embed returns a zero vector.
func (p *Noop) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, p.dims), nil
}

// EmbedBatch returns zero vectors.
func (p *Noop) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = make([]float32, p.dims)
	}
	return vecs, nil
}
