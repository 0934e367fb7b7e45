// Package reasonrank is the public API for embedding the ReasonRank
// argument-graph scoring server.
//
// Platform and plugin consumers import this package to construct and
// extend the server without forking it:
//
//	app, err := reasonrank.New(
//	    reasonrank.WithVersion(version),
//	    reasonrank.WithLogger(logger),
//	    reasonrank.WithScoreHook(myHook{}),
//	    reasonrank.WithExtraRoutes(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: reasonrank (root)
// imports internal/*, but internal/* never imports reasonrank (root).
// Public types (Score, Breakdown, etc.) are standalone structs with no
// internal imports; conversion helpers live here because this is the
// only file that sees both sides of the boundary.
package reasonrank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
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

// graphStore is what the App needs from either storage backend: the
// full handler contract plus the mutation hook driving invalidation.
type graphStore interface {
	server.Store
	OnMutate(fn func(claimID uuid.UUID))
}

// App is the ReasonRank server lifecycle. Construct with New(), run
// with Run(). App has no public fields — use New() options to configure
// it. The in-process Score/Breakdown/Recalculate/Invalidate methods
// work without Run(); Run() adds the HTTP surface and background
// recomputation.
type App struct {
	cfg          config.Config
	store        graphStore
	db           *storage.DB // nil when running on SQLite
	eng          *engine.Engine
	queue        *scorecache.Queue
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	closeStore   func()
	scoreHooks   []ScoreHook
	logger       *slog.Logger
	version      string
}

// New initialises the server. It opens the store, runs migrations,
// wires all subsystems, and returns a ready-to-run App. It does NOT
// start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("reasonrank starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	fail := func(closeStore func(), err error) (*App, error) {
		if closeStore != nil {
			closeStore()
		}
		_ = otelShutdown(context.Background())
		return nil, err
	}

	// Open the graph store.
	var store graphStore
	var db *storage.DB
	var closeStore func()
	if cfg.DatabaseURL != "" {
		db, err = storage.New(context.Background(), cfg.DatabaseURL, cfg.DatabaseURL, logger)
		if err != nil {
			return fail(nil, fmt.Errorf("storage: %w", err))
		}
		closeStore = func() { db.Close(context.Background()) }

		if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
			return fail(closeStore, fmt.Errorf("migrations: %w", err))
		}
		for i, extraFS := range o.extraMigrations {
			if err := db.RunMigrations(context.Background(), extraFS); err != nil {
				return fail(closeStore, fmt.Errorf("extra migrations[%d]: %w", i, err))
			}
		}
		store = db
		logger.Info("storage: postgres")
	} else {
		lite, liteErr := storage.OpenLite(cfg.SQLitePath, logger)
		if liteErr != nil {
			return fail(nil, fmt.Errorf("storage: %w", liteErr))
		}
		closeStore = func() { _ = lite.Close() }
		store = lite
		logger.Info("storage: sqlite", "path", cfg.SQLitePath)
	}

	// Embedding provider — external override takes priority over
	// auto-detect. The public interface matches the internal one, so no
	// adapter is needed.
	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = o.embeddingProvider
	} else {
		embedder = embedding.FromConfig(&cfg, logger)
	}

	// Optional Qdrant candidate index.
	var index similarity.CandidateIndex = similarity.NoopIndex{}
	if cfg.QdrantURL != "" {
		qdrantIndex, idxErr := similarity.NewQdrantIndex(context.Background(), similarity.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if idxErr != nil {
			return fail(closeStore, fmt.Errorf("qdrant: %w", idxErr))
		}
		index = qdrantIndex
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	}

	eng, err := engine.New(engine.Params{
		Store:    store,
		Strategy: similarity.NewSemantic(),
		Index:    index,
		Config:   cfg.Engine,
		Logger:   logger,
	})
	if err != nil {
		return fail(closeStore, fmt.Errorf("engine: %w", err))
	}

	// Score hooks observe every published score, asynchronously.
	if len(o.scoreHooks) > 0 {
		hooks := o.scoreHooks
		eng.Cache().OnPublish(func(s model.Score) {
			pub := toPublicScore(s)
			go func() {
				hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				for _, h := range hooks {
					if err := h.OnScorePublished(hookCtx, pub); err != nil {
						logger.Warn("score hook failed", "claim_id", pub.ClaimID, "error", err)
					}
				}
			}()
		})
	}

	// Background recompute queue, fed by the store's mutation hook.
	queue := scorecache.NewQueue(cfg.RecomputeDebounce, func(ctx context.Context, claimID uuid.UUID) error {
		_, err := eng.Recalculate(ctx, claimID, model.RecalcLocal)
		return err
	}, logger)
	store.OnMutate(func(claimID uuid.UUID) {
		affected, err := eng.Invalidate(context.Background(), claimID)
		if err != nil {
			logger.Warn("invalidation walk failed", "claim_id", claimID, "error", err)
		}
		for _, id := range affected {
			queue.Enqueue(id)
		}
	})

	// JWT manager and the bootstrap API keyring.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fail(closeStore, fmt.Errorf("auth: %w", err))
	}
	keyring, err := auth.NewKeyring(cfg.AdminAPIKey, cfg.EditorAPIKey, cfg.ReaderAPIKey)
	if err != nil {
		return fail(closeStore, fmt.Errorf("auth: %w", err))
	}
	if keyring.Empty() {
		logger.Warn("no bootstrap API keys configured; /auth/token will reject everything")
	}

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
	}

	// MCP server.
	mcpSrv := mcp.New(eng, logger)

	// Adapt route registrars from the public RouteRegistrar to the
	// internal server format.
	var extraRoutes []func(*http.ServeMux, server.RoleMiddlewareFn)
	for _, fn := range o.routeRegistrars {
		fn := fn
		extraRoutes = append(extraRoutes, func(mux *http.ServeMux, roleFn server.RoleMiddlewareFn) {
			fn(mux, &authHelperImpl{roleFn: roleFn})
		})
	}

	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		mw := mw
		middlewares = append(middlewares, func(h http.Handler) http.Handler { return mw(h) })
	}

	srv := server.New(server.Config{
		Store:               store,
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
		ExtraRoutes:         extraRoutes,
		Middlewares:         middlewares,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		db:           db,
		eng:          eng,
		queue:        queue,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		closeStore:   closeStore,
		scoreHooks:   o.scoreHooks,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the background recompute queue, the invalidation listener,
// the optional global propagation schedule, and the HTTP server, then
// blocks until ctx is cancelled or a fatal server error occurs. On
// return, Shutdown is called automatically — callers should not call
// Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	go func() {
		if err := a.queue.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("recompute queue stopped", "error", err)
		}
	}()

	if a.db != nil {
		go func() {
			if err := a.db.ListenInvalidations(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("invalidation listener stopped", "error", err)
			}
		}()
	}

	if a.cfg.PropagateInterval > 0 {
		go a.propagateLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the limiter,
// store, and OTEL provider. Pending background recomputes are
// abandoned; the scores they would have refreshed are already marked
// stale and recompute on the next read.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("reasonrank shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	a.closeStore()

	a.logger.Info("reasonrank stopped")
	return nil
}

// Handler returns the root HTTP handler, for mounting the API inside a
// larger mux instead of calling Run().
func (a *App) Handler() http.Handler { return a.srv.Handler() }

// ── In-process scoring API ──────────────────────────────────────────

// Score returns the claim's score, serving the cached value when one
// exists (stale included) and computing on a cache miss.
func (a *App) Score(ctx context.Context, claimID uuid.UUID) (Score, error) {
	s, err := a.eng.Score(ctx, claimID)
	if err != nil {
		return Score{}, err
	}
	return toPublicScore(s), nil
}

// Breakdown recomputes the claim and returns the full per-item account
// of its score.
func (a *App) Breakdown(ctx context.Context, claimID uuid.UUID) (Breakdown, error) {
	bd, err := a.eng.Breakdown(ctx, claimID)
	if err != nil {
		return Breakdown{}, err
	}
	return toPublicBreakdown(bd), nil
}

// Recalculate forces a recomputation in the given mode.
func (a *App) Recalculate(ctx context.Context, claimID uuid.UUID, mode RecalcMode) (Score, error) {
	s, err := a.eng.Recalculate(ctx, claimID, model.RecalcMode(mode))
	if err != nil {
		return Score{}, err
	}
	return toPublicScore(s), nil
}

// Invalidate marks the claim and every transitive ancestor stale and
// schedules their background recomputation. Returns the affected claim
// ids.
func (a *App) Invalidate(ctx context.Context, claimID uuid.UUID) ([]uuid.UUID, error) {
	affected, err := a.eng.Invalidate(ctx, claimID)
	if err != nil {
		return affected, err
	}
	for _, id := range affected {
		a.queue.Enqueue(id)
	}
	return affected, nil
}

// ── Background loops ────────────────────────────────────────────────

func (a *App) propagateLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.PropagateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(ctx, a.cfg.PropagateTimeout)
			scores, stats, err := a.eng.Propagate(passCtx)
			cancel()
			if err != nil {
				a.logger.Warn("scheduled propagation failed", "error", err)
				continue
			}
			for id, s := range scores {
				a.eng.Cache().Put(id, s)
			}
			a.logger.Info("scheduled propagation finished",
				"claims", stats.Claims,
				"iterations", stats.Iterations,
				"converged", stats.Converged)
		}
	}
}

// ── Adapters ────────────────────────────────────────────────────────

// authHelperImpl implements AuthHelper using the internal role
// middleware, bridging the public interface to the server's auth chain
// without exposing internal packages.
type authHelperImpl struct {
	roleFn server.RoleMiddlewareFn
}

func (a *authHelperImpl) RequireRole(min Role) func(http.Handler) http.Handler {
	return a.roleFn(auth.Role(min))
}

// ── Type converters ─────────────────────────────────────────────────

func toPublicScore(s model.Score) Score {
	return Score{
		ClaimID:    s.ClaimID,
		Overall:    s.Overall,
		Dimensions: s.Dimensions,
		Stale:      s.Stale,
		ComputedAt: s.ComputedAt,
	}
}

func toPublicBreakdown(bd model.Breakdown) Breakdown {
	dims := make([]DimensionBreakdown, len(bd.Dimensions))
	for i, d := range bd.Dimensions {
		dims[i] = DimensionBreakdown{
			Kind:     string(d.Kind),
			Weight:   d.Weight,
			Score:    d.Score,
			ProTotal: d.ProTotal,
			ConTotal: d.ConTotal,
			Balance:  d.Balance,
		}
	}
	contributions := make([]Contribution, len(bd.Contributions))
	for i, c := range bd.Contributions {
		contributions[i] = Contribution{
			ItemID:        c.ItemID,
			Kind:          string(c.Kind),
			Dimension:     string(c.Dimension),
			Statement:     c.Statement,
			DeclaredSide:  string(c.DeclaredSide),
			EffectiveSide: string(c.EffectiveSide),
			SideFlipped:   c.SideFlipped,
			RawWeight:     c.RawWeight,
			Uniqueness:    c.Uniqueness,
			Novelty:       c.Novelty,
			Linkage:       c.Linkage,
			ChildScore:    c.ChildScore,
			Depth:         c.Depth,
			Discount:      c.Discount,
			Value:         c.Value,
		}
	}
	return Breakdown{
		ClaimID:       bd.ClaimID,
		Overall:       bd.Overall,
		Dimensions:    dims,
		Contributions: contributions,
		ComputedAt:    bd.ComputedAt,
	}
}
