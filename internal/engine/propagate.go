package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openargument/reasonrank/internal/model"
	"github.com/openargument/reasonrank/internal/similarity"
)

// loadConcurrency bounds the parallel graph reads when preparing a
// global pass.
const loadConcurrency = 8

// PropagateStats summarizes one global fixed-point pass.
type PropagateStats struct {
	Claims     int
	Iterations int
	MaxDelta   float64
	Converged  bool
}

// propItem is one attachment with everything that does not change
// between iterations resolved up front. Only the conviction multiplier
// (for arguments) and debate-resolved linkage strengths read the
// evolving score map.
type propItem struct {
	dimension model.DimensionKind
	declared  model.Side

	// weight is raw x uniqueness x novelty, fixed for the pass.
	weight float64

	staticLinkage float64
	debateID      *uuid.UUID
	childID       *uuid.UUID
}

type propNode struct {
	id       uuid.UUID
	declared []model.Dimension
	items    []propItem
}

// Propagate runs the damped global pass: every claim's score is
// repeatedly recomputed from its direct attachments using the previous
// iteration's scores for conviction, with
// v' = damping*computed + (1-damping)*prior, until the largest per-claim
// delta drops under epsilon or the iteration cap is hit.
//
// Unlike the local composer it has no depth cutoff: shared
// sub-arguments and reference cycles settle into a consistent fixed
// point instead of being truncated. Direct attachments carry no depth
// discount in this mode, so an acyclic graph converges to the same
// scores the composer produces with depth decay disabled.
func (e *Engine) Propagate(ctx context.Context) (map[uuid.UUID]model.Score, PropagateStats, error) {
	// Archived and flagged claims keep their cached score; the pass only
	// recomputes active claims. Non-active claims still seed the score
	// map, frozen, so conviction and debate lookups through them keep
	// working.
	activeIDs, err := e.store.ListClaimIDs(ctx, true)
	if err != nil {
		return nil, PropagateStats{}, fmt.Errorf("engine: list claims: %w", err)
	}
	allIDs, err := e.store.ListClaimIDs(ctx, false)
	if err != nil {
		return nil, PropagateStats{}, fmt.Errorf("engine: list claims: %w", err)
	}

	// Seed from cached scores where available so warm runs converge in
	// fewer iterations; everything else starts neutral.
	scores := make(map[uuid.UUID]float64, len(allIDs))
	for _, id := range allIDs {
		scores[id] = model.Neutral
		if s, ok := e.cache.Get(id); ok {
			scores[id] = s.Overall
		}
	}

	nodes := make([]*propNode, len(activeIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, id := range activeIDs {
		g.Go(func() error {
			n, err := e.loadNode(gctx, id, scores)
			if err != nil {
				return fmt.Errorf("engine: load claim %s: %w", id, err)
			}
			nodes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, PropagateStats{}, err
	}

	stats := PropagateStats{Claims: len(nodes)}
	for iter := 1; iter <= e.cfg.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		default:
		}

		next := make(map[uuid.UUID]float64, len(scores))
		for id, v := range scores {
			// Frozen entries carry over unchanged.
			next[id] = v
		}
		maxDelta := 0.0
		for _, n := range nodes {
			computed := n.eval(scores, e.cfg.SigmoidScale)
			v := e.cfg.Damping*computed + (1-e.cfg.Damping)*scores[n.id]
			next[n.id] = v
			if delta := math.Abs(v - scores[n.id]); delta > maxDelta {
				maxDelta = delta
			}
		}
		scores = next
		stats.Iterations = iter
		stats.MaxDelta = maxDelta
		if maxDelta < e.cfg.Epsilon {
			stats.Converged = true
			break
		}
	}
	e.metrics.recordPropagation(ctx, stats.Iterations, stats.Converged)

	computedAt := e.now()
	out := make(map[uuid.UUID]model.Score, len(activeIDs))
	for _, id := range activeIDs {
		out[id] = model.Score{ClaimID: id, Overall: scores[id], ComputedAt: computedAt}
	}
	return out, stats, nil
}

// loadNode reads one claim's attachments and resolves the static part
// of every contribution. Uniqueness clusters are fixed at pass start
// using the seed scores; they do not shift as debate-resolved linkage
// strengths move during iteration.
func (e *Engine) loadNode(ctx context.Context, claimID uuid.UUID, priors map[uuid.UUID]float64) (*propNode, error) {
	args, err := e.store.ListArguments(ctx, claimID)
	if err != nil {
		return nil, err
	}
	evidence, err := e.store.ListEvidence(ctx, claimID)
	if err != nil {
		return nil, err
	}
	declared, err := e.store.ListDimensions(ctx, claimID)
	if err != nil {
		return nil, err
	}

	dimKinds := make(map[uuid.UUID]model.DimensionKind, len(declared))
	for _, d := range declared {
		dimKinds[d.ID] = d.Kind
	}

	now := e.now()
	type staged struct {
		item *scoredItem
		prop propItem
	}
	stagedItems := make([]staged, 0, len(args)+len(evidence))

	stage := func(si scoredItem, fallback float64, childID *uuid.UUID) error {
		edge, ok, err := e.store.GetLinkage(ctx, si.id, claimID)
		if err != nil {
			return err
		}
		var debate *uuid.UUID
		link := fallback
		if ok {
			switch {
			case edge.DebateClaimID != nil:
				debate = edge.DebateClaimID
				link = (priors[*edge.DebateClaimID] - model.Neutral) / model.Neutral
			case edge.Strength != 0:
				link = edge.Strength
			case edge.Direct:
				link = 1
			default:
				link = e.cfg.IndirectLinkageBaseline
			}
		}
		si.linkage = link
		stagedItems = append(stagedItems, staged{
			item: newScoredItem(si),
			prop: propItem{
				dimension:     si.dimension,
				staticLinkage: link,
				debateID:      debate,
				childID:       childID,
			},
		})
		return nil
	}

	for _, a := range args {
		kind := model.DimensionOverall
		if a.DimensionID != nil {
			if k, ok := dimKinds[*a.DimensionID]; ok {
				kind = k
			}
		}
		childID := a.ClaimID
		if err := stage(scoredItem{
			id:        a.ID,
			kind:      model.ContributionArgument,
			dimension: kind,
			declared:  a.Side,
			rawWeight: ArgumentWeight(a.EvidenceQuality, a.LogicalValidity, a.Importance),
			novelty:   noveltyMultiplier(e.cfg, a.SubmittedAt, now),
			sim:       similarity.Item{ID: a.ClaimID, Text: a.Statement, Embedding: a.Embedding},
		}, 1, &childID); err != nil {
			return nil, err
		}
	}
	for _, ev := range evidence {
		weight, err := EvidenceWeight(ev)
		if err != nil {
			e.logger.Warn("engine: skipping unscorable evidence",
				"evidence_id", ev.ID, "error", err)
			continue
		}
		if err := stage(scoredItem{
			id:        ev.ID,
			kind:      model.ContributionEvidence,
			dimension: model.DimensionOverall,
			declared:  ev.Side,
			rawWeight: weight,
			novelty:   noveltyMultiplier(e.cfg, ev.SubmittedAt, now),
			sim:       similarity.Item{ID: ev.ID, Text: ev.Statement, Embedding: ev.Embedding},
		}, ev.Linkage, nil); err != nil {
			return nil, err
		}
	}

	type groupKey struct {
		dim  model.DimensionKind
		side model.Side
	}
	groups := make(map[groupKey][]*scoredItem)
	for _, s := range stagedItems {
		k := groupKey{dim: s.item.dimension, side: s.item.effective}
		groups[k] = append(groups[k], s.item)
	}
	for _, g := range groups {
		assignUniqueness(ctx, g, e.strategy, e.cfg.SimilarityThreshold, e.index, e.logger)
	}

	node := &propNode{id: claimID, declared: declared}
	for _, s := range stagedItems {
		p := s.prop
		p.declared = s.item.declared
		p.weight = s.item.rawWeight * s.item.uniqueness * s.item.novelty
		node.items = append(node.items, p)
	}
	return node, nil
}

// eval computes one iteration's raw score for the node from the current
// score map.
func (n *propNode) eval(scores map[uuid.UUID]float64, scale float64) float64 {
	totals := make(map[model.DimensionKind]sideTotals)
	for _, it := range n.items {
		link := it.staticLinkage
		if it.debateID != nil {
			if s, ok := scores[*it.debateID]; ok {
				link = (s - model.Neutral) / model.Neutral
			}
		}

		conviction := 1.0
		if it.childID != nil {
			if s, ok := scores[*it.childID]; ok {
				conviction = s / model.Neutral
			}
		}

		side := it.declared
		if link < 0 {
			side = side.Opposite()
		}
		magnitude := it.weight * math.Abs(link) * conviction

		t := totals[it.dimension]
		if side == model.SideSupporting {
			t.pro += magnitude
		} else {
			t.con += magnitude
		}
		totals[it.dimension] = t
	}

	overall, _ := aggregateDimensions(n.declared, totals, scale)
	return overall
}
