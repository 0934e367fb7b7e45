package model

import (
	"time"

	"github.com/google/uuid"
)

// Score bounds and the neutral midpoint. A claim with zero attached
// arguments scores exactly Neutral; the sigmoid aggregation keeps every
// recomputed score strictly inside (ScoreMin, ScoreMax).
const (
	ScoreMin = 0.0
	ScoreMax = 100.0
	Neutral  = 50.0
)

// RecalcMode selects between on-demand depth-bounded composition and the
// damped global fixed-point pass.
type RecalcMode string

const (
	RecalcLocal  RecalcMode = "local"
	RecalcGlobal RecalcMode = "global"
)

// ValidRecalcMode reports whether m is a known recalculation mode.
func ValidRecalcMode(m RecalcMode) bool {
	return m == RecalcLocal || m == RecalcGlobal
}

// Score is the cached scoring result for one claim.
type Score struct {
	ClaimID uuid.UUID `json:"claim_id"`
	Overall float64   `json:"overall"`

	// Dimensions maps dimension kind to its aggregated score. Empty for
	// claims scored on the flat pro/con balance.
	Dimensions map[string]float64 `json:"dimensions,omitempty"`

	// Stale marks the cached value as outdated by a mutation somewhere
	// in the claim's dependency subtree. Readers still get the value;
	// eventual consistency is a documented property, not a failure.
	Stale      bool      `json:"stale"`
	ComputedAt time.Time `json:"last_computed"`
}

// ContributionKind distinguishes recursive argument contributions from
// leaf evidence contributions in a breakdown.
type ContributionKind string

const (
	ContributionArgument ContributionKind = "argument"
	ContributionEvidence ContributionKind = "evidence"
)

// Contribution is one line of a score breakdown: a single argument or
// evidence item with every factor that produced its share of the
// balance. Value is signed — positive pushes toward supporting,
// negative toward opposing — and the signed values reconcile exactly
// with the claim's overall score (no hidden factors).
type Contribution struct {
	ItemID    uuid.UUID        `json:"item_id"`
	Kind      ContributionKind `json:"kind"`
	Dimension DimensionKind    `json:"dimension"`
	Statement string           `json:"statement,omitempty"`

	DeclaredSide Side `json:"declared_side"`
	// EffectiveSide differs from DeclaredSide when a negative resolved
	// linkage flipped the item; SideFlipped surfaces the discrepancy so
	// reviewers see it instead of it being hidden.
	EffectiveSide Side `json:"effective_side"`
	SideFlipped   bool `json:"side_flipped"`

	RawWeight  float64 `json:"raw_weight"`            // quality-derived weight before discounts
	Uniqueness float64 `json:"uniqueness"`            // [0,1] multiplier after redundancy discount
	Novelty    float64 `json:"novelty"`               // >=1 recency premium multiplier
	Linkage    float64 `json:"linkage"`               // resolved strength in [-1,1]
	ChildScore float64 `json:"child_score,omitempty"` // composed score of the content claim
	Depth      int     `json:"depth"`
	Discount   float64 `json:"depth_discount"` // >=1, grows with depth

	Value float64 `json:"value"` // signed contribution to the balance
}

// DimensionBreakdown is the aggregation summary for one dimension.
type DimensionBreakdown struct {
	Kind     DimensionKind `json:"kind"`
	Weight   float64       `json:"weight"` // normalized share of the overall mean
	Score    float64       `json:"score"`
	ProTotal float64       `json:"pro_total"`
	ConTotal float64       `json:"con_total"`
	Balance  float64       `json:"balance"`
}

// Breakdown is the full "show your work" output for one claim. For every
// dimension, sigmoid(balance/scale) equals the dimension score, and the
// overall score is the weight-normalized mean of dimension scores.
type Breakdown struct {
	ClaimID    uuid.UUID            `json:"claim_id"`
	Overall    float64              `json:"overall"`
	Dimensions []DimensionBreakdown `json:"dimensions"`
	// Contributions are ordered by absolute value, largest first.
	Contributions []Contribution `json:"contributions"`
	ComputedAt    time.Time      `json:"computed_at"`
}
