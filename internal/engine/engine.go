// Package engine computes claim scores over the argument graph.
//
// Two modes share one contribution model. Local mode composes a single
// claim's score recursively with a depth bound, on demand. Global mode
// runs a damped fixed-point pass over every claim, which handles shared
// sub-arguments and reference cycles without a depth cutoff. All reads
// go through graph.Store; the engine itself holds no graph state, only
// the score cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/openargument/reasonrank/internal/config"
	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
	"github.com/openargument/reasonrank/internal/scorecache"
	"github.com/openargument/reasonrank/internal/similarity"
)

// Params configures a new Engine. Store is required; everything else
// has a working default.
type Params struct {
	Store    graph.Store
	Cache    *scorecache.Cache
	Strategy similarity.Strategy
	Index    similarity.CandidateIndex
	Config   config.Engine
	Logger   *slog.Logger

	// Now overrides the clock, for novelty-premium tests.
	Now func() time.Time
}

// Engine is the scoring engine. Safe for concurrent use.
type Engine struct {
	store    graph.Store
	cache    *scorecache.Cache
	strategy similarity.Strategy
	index    similarity.CandidateIndex
	cfg      config.Engine
	logger   *slog.Logger
	now      func() time.Time

	// group collapses concurrent recalculations of the same claim.
	group   singleflight.Group
	metrics *engineMetrics
}

// New creates an engine.
func New(p Params) (*Engine, error) {
	if p.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if p.Cache == nil {
		p.Cache = scorecache.New()
	}
	if p.Strategy == nil {
		p.Strategy = similarity.NewSemantic()
	}
	if p.Index == nil {
		p.Index = similarity.NoopIndex{}
	}
	if p.Config == (config.Engine{}) {
		p.Config = config.DefaultEngine()
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Now == nil {
		p.Now = time.Now
	}

	m, err := newEngineMetrics()
	if err != nil {
		p.Logger.Warn("engine: metrics disabled", "error", err)
		m = nil
	}

	return &Engine{
		store:    p.Store,
		cache:    p.Cache,
		strategy: p.Strategy,
		index:    p.Index,
		cfg:      p.Config,
		logger:   p.Logger,
		now:      p.Now,
		metrics:  m,
	}, nil
}

// Cache exposes the score cache for wiring invalidation hooks.
func (e *Engine) Cache() *scorecache.Cache { return e.cache }

// Score returns the claim's score, serving the cached value when one
// exists (stale included) and computing locally on a cache miss.
func (e *Engine) Score(ctx context.Context, claimID uuid.UUID) (model.Score, error) {
	if s, ok := e.cache.Get(claimID); ok {
		e.metrics.recordCacheRead(ctx, cacheReadOutcome(s.Stale))
		return s, nil
	}
	e.metrics.recordCacheRead(ctx, "miss")
	return e.Recalculate(ctx, claimID, model.RecalcLocal)
}

// Breakdown recomputes the claim and returns the full per-item account
// of its score. The fresh result is also published to the cache, so a
// breakdown always reconciles with the score served right after it.
func (e *Engine) Breakdown(ctx context.Context, claimID uuid.UUID) (model.Breakdown, error) {
	c := &composer{e: e, now: e.now()}
	d, err := c.composeClaim(ctx, claimID, 0)
	if err != nil {
		return model.Breakdown{}, err
	}

	score := e.cache.Put(claimID, scoreFromDetail(claimID, d))

	contributions := make([]model.Contribution, 0, len(d.items))
	for _, it := range d.items {
		contributions = append(contributions, model.Contribution{
			ItemID:        it.id,
			Kind:          it.kind,
			Dimension:     it.dimension,
			Statement:     it.statement,
			DeclaredSide:  it.declared,
			EffectiveSide: it.effective,
			SideFlipped:   it.flipped,
			RawWeight:     it.rawWeight,
			Uniqueness:    it.uniqueness,
			Novelty:       it.novelty,
			Linkage:       it.linkage,
			ChildScore:    it.childScore,
			Depth:         it.depth,
			Discount:      it.discount,
			Value:         it.value,
		})
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return abs(contributions[i].Value) > abs(contributions[j].Value)
	})

	return model.Breakdown{
		ClaimID:       claimID,
		Overall:       d.overall,
		Dimensions:    d.dims,
		Contributions: contributions,
		ComputedAt:    score.ComputedAt,
	}, nil
}

// Recalculate forces a recomputation. Local mode composes just this
// claim's subtree; global mode runs the fixed-point pass over the whole
// graph and republishes every score. Concurrent calls for the same
// claim and mode collapse into one computation.
func (e *Engine) Recalculate(ctx context.Context, claimID uuid.UUID, mode model.RecalcMode) (model.Score, error) {
	if !model.ValidRecalcMode(mode) {
		return model.Score{}, fmt.Errorf("engine: unknown recalculation mode %q", mode)
	}

	v, err, _ := e.group.Do(claimID.String()+"/"+string(mode), func() (any, error) {
		start := e.now()
		score, err := e.recalculate(ctx, claimID, mode)
		if err == nil {
			e.metrics.recordRecompute(ctx, string(mode), e.now().Sub(start))
		}
		return score, err
	})
	if err != nil {
		return model.Score{}, err
	}
	return v.(model.Score), nil
}

func (e *Engine) recalculate(ctx context.Context, claimID uuid.UUID, mode model.RecalcMode) (model.Score, error) {
	switch mode {
	case model.RecalcLocal:
		c := &composer{e: e, now: e.now()}
		d, err := c.composeClaim(ctx, claimID, 0)
		if err != nil {
			return model.Score{}, err
		}
		return e.cache.Put(claimID, scoreFromDetail(claimID, d)), nil

	case model.RecalcGlobal:
		if _, err := e.store.GetClaim(ctx, claimID); err != nil {
			return model.Score{}, err
		}
		scores, stats, err := e.Propagate(ctx)
		if err != nil {
			return model.Score{}, err
		}
		var requested model.Score
		for id, s := range scores {
			published := e.cache.Put(id, s)
			if id == claimID {
				requested = published
			}
		}
		e.logger.Info("engine: global propagation finished",
			"claims", stats.Claims,
			"iterations", stats.Iterations,
			"max_delta", stats.MaxDelta,
			"converged", stats.Converged)
		if _, ok := scores[claimID]; !ok {
			// Archived and flagged claims sit outside the pass; serve the
			// frozen cached score, composing one only on a cold cache.
			if s, ok := e.cache.Get(claimID); ok {
				return s, nil
			}
			return e.recalculate(ctx, claimID, model.RecalcLocal)
		}
		return requested, nil

	default:
		return model.Score{}, fmt.Errorf("engine: unknown recalculation mode %q", mode)
	}
}

// Invalidate marks the claim and every transitive ancestor stale.
// Ancestors are found by walking ListParents with a visited set: shared
// sub-arguments make the dependency structure a graph, and reference
// cycles must not hang the walk. Returns the affected claim ids.
//
// Archived and flagged claims keep their cached score: they are neither
// marked stale nor reported as affected, so the recompute queue never
// picks them up. The walk still passes through them, because an active
// ancestor recomposes its whole subtree regardless of the lifecycle
// status of intermediate claims.
func (e *Engine) Invalidate(ctx context.Context, claimID uuid.UUID) ([]uuid.UUID, error) {
	visited := map[uuid.UUID]struct{}{claimID: {}}
	queue := []uuid.UUID{claimID}
	affected := make([]uuid.UUID, 0, 1)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		c, err := e.store.GetClaim(ctx, id)
		switch {
		case errors.Is(err, graph.ErrNotFound):
			// Deleted mid-walk (or the trigger was the deletion itself);
			// nothing to stale, but ancestors may still depend on it.
		case err != nil:
			return affected, fmt.Errorf("engine: walk ancestors of %s: %w", id, err)
		case c.Status == model.ClaimStatusActive:
			e.cache.MarkStale(id)
			affected = append(affected, id)
		}

		parents, err := e.store.ListParents(ctx, id)
		if err != nil {
			return affected, fmt.Errorf("engine: walk ancestors of %s: %w", id, err)
		}
		for _, p := range parents {
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}

	e.metrics.recordInvalidation(ctx, len(affected))
	return affected, nil
}

func scoreFromDetail(claimID uuid.UUID, d detail) model.Score {
	s := model.Score{ClaimID: claimID, Overall: d.overall}
	if len(d.dims) > 1 || (len(d.dims) == 1 && d.dims[0].Kind != model.DimensionOverall) {
		s.Dimensions = make(map[string]float64, len(d.dims))
		for _, db := range d.dims {
			s.Dimensions[string(db.Kind)] = db.Score
		}
	}
	return s
}

func cacheReadOutcome(stale bool) string {
	if stale {
		return "stale"
	}
	return "hit"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
