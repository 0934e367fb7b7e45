package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
	"github.com/openargument/reasonrank/internal/similarity"
)

// scoredItem is one argument or evidence attachment with every factor
// of its contribution resolved. Pointers so the uniqueness pass can
// write multipliers in place.
type scoredItem struct {
	id        uuid.UUID
	kind      model.ContributionKind
	dimension model.DimensionKind
	statement string

	declared  model.Side
	effective model.Side
	flipped   bool

	rawWeight  float64
	uniqueness float64
	novelty    float64
	linkage    float64
	childScore float64
	depth      int
	discount   float64

	value float64

	sim similarity.Item
}

// detail is one claim's fully resolved composition: the overall score
// plus everything a breakdown needs.
type detail struct {
	overall float64
	dims    []model.DimensionBreakdown
	items   []*scoredItem
}

// composer runs one depth-bounded recursive composition. A fresh
// composer is created per recomputation so the reference time is fixed
// for the whole pass.
type composer struct {
	e   *Engine
	now time.Time
}

// compose returns just the composed score for a claim, recursing into
// sub-arguments and linkage debates up to the configured depth bound.
func (c *composer) compose(ctx context.Context, claimID uuid.UUID, depth int) (float64, error) {
	d, err := c.composeClaim(ctx, claimID, depth)
	if err != nil {
		return 0, err
	}
	return d.overall, nil
}

// composeClaim scores one claim from its direct attachments.
//
// Per item: weight x uniqueness x novelty x |linkage| x conviction,
// divided by the depth discount, signed by the effective side. The
// conviction multiplier is the content claim's own composed score
// relative to neutral, which is where the recursion happens. Recursion
// past MaxDepth contributes a neutral score, which is also what keeps
// reference cycles finite.
func (c *composer) composeClaim(ctx context.Context, claimID uuid.UUID, depth int) (detail, error) {
	if depth > c.e.cfg.MaxDepth {
		return detail{overall: model.Neutral}, nil
	}
	if _, err := c.e.store.GetClaim(ctx, claimID); err != nil {
		return detail{}, err
	}

	args, err := c.e.store.ListArguments(ctx, claimID)
	if err != nil {
		return detail{}, err
	}
	evidence, err := c.e.store.ListEvidence(ctx, claimID)
	if err != nil {
		return detail{}, err
	}
	declared, err := c.e.store.ListDimensions(ctx, claimID)
	if err != nil {
		return detail{}, err
	}

	dimKinds := make(map[uuid.UUID]model.DimensionKind, len(declared))
	for _, d := range declared {
		dimKinds[d.ID] = d.Kind
	}

	items := make([]*scoredItem, 0, len(args)+len(evidence))

	for _, a := range args {
		link, err := c.resolveLinkage(ctx, a.ID, claimID, 1, depth)
		if err != nil {
			return detail{}, err
		}

		child, err := c.compose(ctx, a.ClaimID, depth+1)
		if errors.Is(err, graph.ErrNotFound) {
			// Dangling content reference: score it neutral rather than
			// failing the whole recomputation.
			c.e.logger.Warn("engine: argument content claim missing",
				"argument_id", a.ID, "claim_id", a.ClaimID)
			child = model.Neutral
		} else if err != nil {
			return detail{}, err
		}

		kind := model.DimensionOverall
		if a.DimensionID != nil {
			if k, ok := dimKinds[*a.DimensionID]; ok {
				kind = k
			}
		}

		items = append(items, newScoredItem(scoredItem{
			id:         a.ID,
			kind:       model.ContributionArgument,
			dimension:  kind,
			statement:  a.Statement,
			declared:   a.Side,
			rawWeight:  ArgumentWeight(a.EvidenceQuality, a.LogicalValidity, a.Importance),
			novelty:    noveltyMultiplier(c.e.cfg, a.SubmittedAt, c.now),
			linkage:    link,
			childScore: child,
			sim:        similarity.Item{ID: a.ClaimID, Text: a.Statement, Embedding: a.Embedding},
		}))
	}

	for _, ev := range evidence {
		weight, err := EvidenceWeight(ev)
		if err != nil {
			// Stored evidence is validated on write; an unknown tier here
			// means a removed constant, not bad input.
			c.e.logger.Warn("engine: skipping unscorable evidence",
				"evidence_id", ev.ID, "error", err)
			continue
		}
		link, err := c.resolveLinkage(ctx, ev.ID, claimID, ev.Linkage, depth)
		if err != nil {
			return detail{}, err
		}
		items = append(items, newScoredItem(scoredItem{
			id:        ev.ID,
			kind:      model.ContributionEvidence,
			dimension: model.DimensionOverall,
			statement: ev.Statement,
			declared:  ev.Side,
			rawWeight: weight,
			novelty:   noveltyMultiplier(c.e.cfg, ev.SubmittedAt, c.now),
			linkage:   link,
			sim:       similarity.Item{ID: ev.ID, Text: ev.Statement, Embedding: ev.Embedding},
		}))
	}

	// Redundancy discount runs per sibling group before any aggregation:
	// items only compete with same-side items on the same dimension.
	type groupKey struct {
		dim  model.DimensionKind
		side model.Side
	}
	groups := make(map[groupKey][]*scoredItem)
	for _, it := range items {
		k := groupKey{dim: it.dimension, side: it.effective}
		groups[k] = append(groups[k], it)
	}
	for _, g := range groups {
		assignUniqueness(ctx, g, c.e.strategy, c.e.cfg.SimilarityThreshold, c.e.index, c.e.logger)
	}

	discount := depthDiscount(c.e.cfg.DepthDecay, depth)
	totals := make(map[model.DimensionKind]sideTotals)
	for _, it := range items {
		conviction := 1.0
		if it.kind == model.ContributionArgument {
			conviction = it.childScore / model.Neutral
		}
		magnitude := it.rawWeight * it.uniqueness * it.novelty * math.Abs(it.linkage) * conviction / discount
		it.depth = depth
		it.discount = discount

		t := totals[it.dimension]
		if it.effective == model.SideSupporting {
			t.pro += magnitude
			it.value = magnitude
		} else {
			t.con += magnitude
			it.value = -magnitude
		}
		totals[it.dimension] = t
	}

	overall, dims := aggregateDimensions(declared, totals, c.e.cfg.SigmoidScale)
	return detail{overall: overall, dims: dims, items: items}, nil
}

// newScoredItem fills the derived fields: effective side (flipped when
// the resolved linkage is negative) and the default multipliers.
func newScoredItem(it scoredItem) *scoredItem {
	it.uniqueness = 1
	it.effective = it.declared
	if it.linkage < 0 {
		it.effective = it.declared.Opposite()
		it.flipped = true
	}
	return &it
}
