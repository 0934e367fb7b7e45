package engine

import (
	"bytes"
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/openargument/reasonrank/internal/similarity"
)

const (
	// candidateCutoff is the sibling-group size above which the resolver
	// asks the candidate index for near neighbors instead of comparing
	// every pair.
	candidateCutoff = 32

	// neighborLimit is how many candidates to pull per item.
	neighborLimit = 16
)

// assignUniqueness sets the redundancy multiplier on every item of one
// sibling group (same claim, same dimension, same effective side).
//
// Greedy clustering in descending weight order: the heaviest statement
// of each near-duplicate cluster keeps its full weight, and every later
// member contributes only its dissimilarity share (1 - sim). Restating
// the strongest point many times therefore adds almost nothing, while a
// genuinely new angle keeps multiplier 1.
func assignUniqueness(ctx context.Context, items []*scoredItem, strat similarity.Strategy, threshold float64, index similarity.CandidateIndex, logger *slog.Logger) {
	if len(items) < 2 {
		return
	}

	ordered := make([]*scoredItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].rawWeight != ordered[j].rawWeight {
			return ordered[i].rawWeight > ordered[j].rawWeight
		}
		// Deterministic tiebreak so equal-weight duplicates always pick
		// the same representative.
		return bytes.Compare(ordered[i].id[:], ordered[j].id[:]) < 0
	})

	allowed := candidatePairs(ctx, ordered, index, logger)

	var reps []*scoredItem
	for _, it := range ordered {
		it.uniqueness = 1
		bestSim := 0.0
		for _, rep := range reps {
			if allowed != nil {
				if _, ok := allowed[pairKey(it.sim.ID, rep.sim.ID)]; !ok {
					continue
				}
			}
			if sim := strat.Similarity(it.sim, rep.sim); sim > bestSim {
				bestSim = sim
			}
		}
		if bestSim >= threshold {
			it.uniqueness = 1 - bestSim
			if it.uniqueness < 0 {
				it.uniqueness = 0
			}
			continue
		}
		reps = append(reps, it)
	}
}

// candidatePairs narrows the comparison set for large groups using the
// candidate index. Returns nil to mean "compare all pairs": small
// groups, no index, missing embeddings, or an index failure (logged,
// never fatal; the resolver just does the quadratic work). Pairs are
// keyed by the statement-owner ids (content claim for arguments,
// evidence id for evidence), which is the id space the index stores.
//
// An index that answers but returns no neighbors for any item in the
// group has not been populated yet; that is treated like an index
// failure, because an empty candidate set would otherwise suppress
// every comparison and wave redundant restatements through at full
// weight.
func candidatePairs(ctx context.Context, items []*scoredItem, index similarity.CandidateIndex, logger *slog.Logger) map[[32]byte]struct{} {
	if index == nil || len(items) <= candidateCutoff {
		return nil
	}
	if _, noop := index.(similarity.NoopIndex); noop {
		return nil
	}

	allowed := make(map[[32]byte]struct{})
	for _, it := range items {
		if len(it.sim.Embedding) == 0 {
			return nil
		}
		neighbors, err := index.Neighbors(ctx, it.sim, neighborLimit)
		if err != nil {
			logger.Warn("engine: candidate index lookup failed, comparing all pairs", "error", err)
			return nil
		}
		for _, n := range neighbors {
			allowed[pairKey(it.sim.ID, n.ID)] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		logger.Warn("engine: candidate index returned no neighbors, comparing all pairs",
			"group_size", len(items))
		return nil
	}
	return allowed
}

func pairKey(a, b uuid.UUID) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var key [32]byte
	copy(key[:16], a[:])
	copy(key[16:], b[:])
	return key
}
