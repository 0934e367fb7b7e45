package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openargument/reasonrank/internal/model"
)

// resolveLinkage returns the effective strength, in [-1,1], of the edge
// from an attached item to its target claim.
//
// Resolution order:
//   - a linkage debate overrides everything: strength is the debate
//     claim's composed score mapped to (-1,1), so linkage is argued
//     about with the same machinery as everything else;
//   - an explicitly recorded strength is used as recorded;
//   - an edge with zero strength falls back to the attachment baseline
//     (1.0 direct, the configured lower baseline for indirect);
//   - no edge at all means the caller's fallback applies.
//
// Negative strength is meaningful, not an error: it flips the item onto
// the opposite side of the balance.
func (c *composer) resolveLinkage(ctx context.Context, itemID, targetID uuid.UUID, fallback float64, depth int) (float64, error) {
	edge, ok, err := c.e.store.GetLinkage(ctx, itemID, targetID)
	if err != nil {
		return 0, fmt.Errorf("engine: linkage %s -> %s: %w", itemID, targetID, err)
	}
	if !ok {
		return fallback, nil
	}
	if edge.DebateClaimID != nil {
		score, err := c.compose(ctx, *edge.DebateClaimID, depth+1)
		if err != nil {
			return 0, fmt.Errorf("engine: linkage debate %s: %w", *edge.DebateClaimID, err)
		}
		return (score - model.Neutral) / model.Neutral, nil
	}
	if edge.Strength != 0 {
		return edge.Strength, nil
	}
	if edge.Direct {
		return 1, nil
	}
	return c.e.cfg.IndirectLinkageBaseline, nil
}
