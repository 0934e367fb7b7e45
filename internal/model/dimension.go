package model

import "github.com/google/uuid"

// DimensionKind names one independently-scored quality axis of a claim
// or measurement criterion. The canonical four come from the objective
// criteria scoring variant; custom kinds are allowed but must be
// non-empty.
type DimensionKind string

const (
	DimensionValidity     DimensionKind = "validity"
	DimensionReliability  DimensionKind = "reliability"
	DimensionIndependence DimensionKind = "independence"
	DimensionLinkage      DimensionKind = "linkage"

	// DimensionOverall is the implicit dimension that holds arguments
	// not scoped to a declared dimension.
	DimensionOverall DimensionKind = "overall"
)

// Dimension is one scored axis of a claim. Each dimension aggregates its
// own pro/con argument set; the claim's overall score is the
// weight-normalized mean of its dimension scores.
type Dimension struct {
	ID      uuid.UUID     `json:"id"`
	ClaimID uuid.UUID     `json:"claim_id"`
	Kind    DimensionKind `json:"kind"`

	// Weight is this dimension's share of the overall mean. Weights are
	// renormalized across the claim's dimensions, so only ratios matter.
	Weight float64 `json:"weight"`
}

// ValidateDimension checks a dimension at the mutation boundary.
func ValidateDimension(d Dimension) error {
	if d.Kind == "" {
		return validationf("kind", "must not be empty")
	}
	if d.Weight <= 0 || d.Weight != d.Weight {
		return validationf("weight", "must be positive (got %v)", d.Weight)
	}
	return nil
}
