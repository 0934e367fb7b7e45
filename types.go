package reasonrank

import (
	"time"

	"github.com/google/uuid"
)

// Role is a token's access level. Roles form a ladder:
// reader < editor < admin.
type Role string

const (
	RoleReader Role = "reader"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// RecalcMode selects between on-demand subtree composition and the
// damped global fixed-point pass.
type RecalcMode string

const (
	RecalcLocal  RecalcMode = "local"
	RecalcGlobal RecalcMode = "global"
)

// Score is the public view of a claim's cached score.
// It is a curated copy of the internal score type with no internal
// package imports — safe to use from outside the module.
type Score struct {
	ClaimID uuid.UUID
	// Overall is in [0,100]; 50 is neutral.
	Overall float64
	// Dimensions maps dimension kind to its aggregated score. Empty for
	// claims scored on the flat pro/con balance.
	Dimensions map[string]float64
	// Stale means a mutation somewhere in the claim's dependency subtree
	// has outdated this value and a recomputation is pending.
	Stale      bool
	ComputedAt time.Time
}

// Contribution is one line of a breakdown: a single argument or
// evidence item with every factor that produced its share of the
// balance. Value is signed; positive pushes toward supporting.
type Contribution struct {
	ItemID    uuid.UUID
	Kind      string // "argument" or "evidence"
	Dimension string
	Statement string

	DeclaredSide  string
	EffectiveSide string
	SideFlipped   bool

	RawWeight  float64
	Uniqueness float64
	Novelty    float64
	Linkage    float64
	ChildScore float64
	Depth      int
	Discount   float64

	Value float64
}

// DimensionBreakdown is the aggregation summary for one dimension.
type DimensionBreakdown struct {
	Kind     string
	Weight   float64
	Score    float64
	ProTotal float64
	ConTotal float64
	Balance  float64
}

// Breakdown is the full per-item account of one claim's score.
type Breakdown struct {
	ClaimID       uuid.UUID
	Overall       float64
	Dimensions    []DimensionBreakdown
	Contributions []Contribution
	ComputedAt    time.Time
}
