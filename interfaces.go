package reasonrank

import (
	"context"
	"net/http"
)

// EmbeddingProvider generates vector embeddings from statement text.
// When provided via WithEmbeddingProvider, it replaces the auto-detected
// Ollama/OpenAI/noop provider.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// ScoreHook receives async notifications whenever a fresh score is
// published, whether from an on-demand read, an explicit recalculation,
// a background refresh, or a global propagation pass. Hook methods run
// in goroutines and must not block indefinitely; failures are logged
// but never fail the computation that produced the score.
type ScoreHook interface {
	OnScorePublished(ctx context.Context, score Score) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extra routes share the mux, auth chain, and instrumentation with the
// built-in routes. Called once during New() after all built-in routes
// are registered.
type RouteRegistrar func(mux *http.ServeMux, auth AuthHelper)

// AuthHelper provides role-gating middleware for use in RouteRegistrar,
// so extra routes use the same auth chain without depending on internal
// packages.
type AuthHelper interface {
	RequireRole(min Role) func(http.Handler) http.Handler
}

// Middleware wraps the root HTTP handler. Applied outermost (before
// routing), so it sees all requests including /health. Multiple
// middlewares are applied in registration order, first registered
// outermost.
type Middleware func(http.Handler) http.Handler
