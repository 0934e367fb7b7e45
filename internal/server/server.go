// Package server implements the HTTP API for the argument scoring
// engine: cached score reads, breakdowns, recalculation, and the
// CRUD-lite mutations that drive invalidation.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openargument/reasonrank/internal/auth"
	"github.com/openargument/reasonrank/internal/engine"
	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/ratelimit"
	"github.com/openargument/reasonrank/internal/service/embedding"
	"github.com/openargument/reasonrank/internal/similarity"
)

// Store is the combined read/write contract handlers need, plus a health
// probe. Postgres, SQLite and the in-memory graph all satisfy it.
type Store interface {
	graph.Store
	graph.Mutator
	Ping(ctx context.Context) error
}

// Server is the HTTP front of the scoring engine.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers { return s.handlers }

// RoleMiddlewareFn builds the role-gating middleware for a minimum
// role. Passed to extra route registrars so embedded consumers share
// the auth chain.
type RoleMiddlewareFn func(min auth.Role) func(http.Handler) http.Handler

// Config holds dependencies and settings for creating a Server.
// Optional (nil-safe): Embedder, Index, Limiter, MCPServer,
// OpenAPISpec, ExtraRoutes, Middlewares.
type Config struct {
	Store   Store
	Engine  *engine.Engine
	JWTMgr  *auth.JWTManager
	Keyring *auth.Keyring
	Logger  *slog.Logger

	Embedder  embedding.Provider
	Index     similarity.CandidateIndex
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	OpenAPISpec []byte

	// ExtraRoutes register additional routes on the shared mux, called
	// after the built-in routes. Middlewares wrap the root handler,
	// first registered outermost.
	ExtraRoutes []func(mux *http.ServeMux, roleFn RoleMiddlewareFn)
	Middlewares []func(http.Handler) http.Handler
}

// New creates an HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		Engine:              cfg.Engine,
		JWTMgr:              cfg.JWTMgr,
		Keyring:             cfg.Keyring,
		Embedder:            cfg.Embedder,
		Index:               cfg.Index,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Authenticated traffic is limited per token subject, anonymous auth
	// attempts per client IP.
	apiRL := ratelimit.Middleware(cfg.Limiter, subjectKeyFunc, cfg.Logger)
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Token minting (no auth, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	readRole := requireRole(auth.RoleReader)
	editRole := requireRole(auth.RoleEditor)

	// Score reads (reader+).
	mux.Handle("GET /v1/claims/{claim_id}/score", apiRL(readRole(http.HandlerFunc(h.HandleScore))))
	mux.Handle("GET /v1/claims/{claim_id}/breakdown", apiRL(readRole(http.HandlerFunc(h.HandleBreakdown))))

	// Recalculation control (editor+).
	mux.Handle("POST /v1/claims/{claim_id}/recalculate", apiRL(editRole(http.HandlerFunc(h.HandleRecalculate))))
	mux.Handle("POST /v1/claims/{claim_id}/invalidate", apiRL(editRole(http.HandlerFunc(h.HandleInvalidate))))

	// Graph mutations (editor+). Every mutation invalidates the owning
	// claim before it returns.
	mux.Handle("POST /v1/claims", apiRL(editRole(http.HandlerFunc(h.HandleCreateClaim))))
	mux.Handle("PATCH /v1/claims/{claim_id}/status", apiRL(editRole(http.HandlerFunc(h.HandleSetClaimStatus))))
	mux.Handle("DELETE /v1/claims/{claim_id}", apiRL(editRole(http.HandlerFunc(h.HandleDeleteClaim))))
	mux.Handle("POST /v1/claims/{claim_id}/arguments", apiRL(editRole(http.HandlerFunc(h.HandleAttachArgument))))
	mux.Handle("POST /v1/claims/{claim_id}/evidence", apiRL(editRole(http.HandlerFunc(h.HandleAttachClaimEvidence))))
	mux.Handle("POST /v1/claims/{claim_id}/dimensions", apiRL(editRole(http.HandlerFunc(h.HandleCreateDimension))))
	mux.Handle("POST /v1/arguments/{argument_id}/evidence", apiRL(editRole(http.HandlerFunc(h.HandleAttachArgumentEvidence))))
	mux.Handle("PATCH /v1/arguments/{argument_id}/quality", apiRL(editRole(http.HandlerFunc(h.HandleUpdateQuality))))
	mux.Handle("DELETE /v1/arguments/{argument_id}", apiRL(editRole(http.HandlerFunc(h.HandleDetachArgument))))
	mux.Handle("PATCH /v1/evidence/{evidence_id}/verification", apiRL(editRole(http.HandlerFunc(h.HandleSetVerification))))
	mux.Handle("PUT /v1/linkages", apiRL(editRole(http.HandlerFunc(h.HandleUpsertLinkage))))

	// MCP StreamableHTTP transport (reader+).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", readRole(mcpHTTP))
	}

	// Unauthenticated surface.
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Embedded-consumer routes share the mux and auth chain.
	for _, register := range cfg.ExtraRoutes {
		register(mux, requireRole)
	}

	// Middleware chain (outermost executes first):
	// request ID -> security headers -> tracing -> logging -> auth -> recovery -> handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// subjectKeyFunc rate-limits authenticated requests by token subject.
// Admin tokens are exempt.
func subjectKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Role.AtLeast(auth.RoleAdmin) {
		return ""
	}
	return claims.Subject
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
