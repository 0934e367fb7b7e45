package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/openargument/reasonrank/api"
	"github.com/openargument/reasonrank/internal/auth"
	"github.com/openargument/reasonrank/internal/config"
	"github.com/openargument/reasonrank/internal/engine"
	"github.com/openargument/reasonrank/internal/mcp"
	"github.com/openargument/reasonrank/internal/model"
	"github.com/openargument/reasonrank/internal/ratelimit"
	"github.com/openargument/reasonrank/internal/scorecache"
	"github.com/openargument/reasonrank/internal/server"
	"github.com/openargument/reasonrank/internal/service/embedding"
	"github.com/openargument/reasonrank/internal/similarity"
	"github.com/openargument/reasonrank/internal/storage"
	"github.com/openargument/reasonrank/internal/telemetry"
	"github.com/openargument/reasonrank/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("REASONRANK_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

// store is what main needs from either storage backend: the full handler
// contract plus the mutation hook that drives cache invalidation.
type store interface {
	server.Store
	OnMutate(fn func(claimID uuid.UUID))
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("reasonrank starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Open the graph store. DATABASE_URL selects Postgres; otherwise the
	// server runs self-contained on an embedded SQLite file.
	var graphStore store
	if cfg.DatabaseURL != "" {
		db, err := storage.New(ctx, cfg.DatabaseURL, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer db.Close(ctx)

		// RunMigrations tracks applied files in schema_migrations and skips
		// duplicates, so errors here indicate real failures.
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}

		// Cross-instance invalidation: other replicas' mutations arrive via
		// LISTEN/NOTIFY and feed the same OnMutate hook as local writes.
		go func() {
			if err := db.ListenInvalidations(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("invalidation listener stopped", "error", err)
			}
		}()

		graphStore = db
		logger.Info("storage: postgres")
	} else {
		lite, err := storage.OpenLite(cfg.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer func() { _ = lite.Close() }()
		graphStore = lite
		logger.Info("storage: sqlite", "path", cfg.SQLitePath)
	}

	// Embedding provider feeds the semantic similarity strategy.
	embedder := embedding.FromConfig(&cfg, logger)

	// Optional Qdrant candidate index for large sibling lists.
	var index similarity.CandidateIndex = similarity.NoopIndex{}
	if cfg.QdrantURL != "" {
		qdrantIndex, err := similarity.NewQdrantIndex(ctx, similarity.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		index = qdrantIndex
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no QDRANT_URL)")
	}

	eng, err := engine.New(engine.Params{
		Store:    graphStore,
		Strategy: similarity.NewSemantic(),
		Index:    index,
		Config:   cfg.Engine,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// Background recompute queue. Mutations invalidate the claim and its
	// ancestors immediately (stale scores stay servable), then the queue
	// recomputes each affected claim after the debounce window.
	queue := scorecache.NewQueue(cfg.RecomputeDebounce, func(ctx context.Context, claimID uuid.UUID) error {
		_, err := eng.Recalculate(ctx, claimID, model.RecalcLocal)
		return err
	}, logger)
	go func() {
		if err := queue.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("recompute queue stopped", "error", err)
		}
	}()

	graphStore.OnMutate(func(claimID uuid.UUID) {
		affected, err := eng.Invalidate(ctx, claimID)
		if err != nil {
			logger.Warn("invalidation walk failed", "claim_id", claimID, "error", err)
		}
		for _, id := range affected {
			queue.Enqueue(id)
		}
	})

	// Scheduled global propagation (optional).
	if cfg.PropagateInterval > 0 {
		go propagateLoop(ctx, eng, logger, cfg.PropagateInterval, cfg.PropagateTimeout)
		logger.Info("global propagation scheduled", "interval", cfg.PropagateInterval)
	}

	// Create JWT manager and the bootstrap API keyring.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	keyring, err := auth.NewKeyring(cfg.AdminAPIKey, cfg.EditorAPIKey, cfg.ReaderAPIKey)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if keyring.Empty() {
		logger.Warn("no bootstrap API keys configured; /auth/token will reject everything " +
			"(set REASONRANK_ADMIN_API_KEY, REASONRANK_EDITOR_API_KEY, or REASONRANK_READER_API_KEY)")
	}

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// MCP server exposes the scoring tools over StreamableHTTP at /mcp.
	mcpSrv := mcp.New(eng, logger)

	srv := server.New(server.Config{
		Store:               graphStore,
		Engine:              eng,
		JWTMgr:              jwtMgr,
		Keyring:             keyring,
		Logger:              logger,
		Embedder:            embedder,
		Index:               index,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting HTTP requests and drain in-flight
	// ones. Pending recomputes are abandoned; scores they would have
	// refreshed are already marked stale and recompute on next read.
	slog.Info("reasonrank shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("reasonrank stopped")
	return nil
}

// propagateLoop runs the damped fixed-point pass on a schedule and
// republishes every score. Each pass is bounded by timeout so a
// pathological graph cannot wedge the loop.
func propagateLoop(ctx context.Context, eng *engine.Engine, logger *slog.Logger, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(ctx, timeout)
			scores, stats, err := eng.Propagate(passCtx)
			cancel()
			if err != nil {
				logger.Warn("scheduled propagation failed", "error", err)
				continue
			}
			for id, s := range scores {
				eng.Cache().Put(id, s)
			}
			logger.Info("scheduled propagation finished",
				"claims", stats.Claims,
				"iterations", stats.Iterations,
				"converged", stats.Converged)
		}
	}
}

// Compile-time checks that both storage backends satisfy the store
// contract main wires together.
var (
	_ store = (*storage.DB)(nil)
	_ store = (*storage.Lite)(nil)
)
