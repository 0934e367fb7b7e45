package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Quality score bounds. Quality sub-scores outside this range are a
// validation error at the mutation boundary, never silently clamped —
// clamping would hide upstream bugs and make scores unverifiable.
const (
	QualityMin = 0.0
	QualityMax = 100.0
)

// Argument is a pro/con attachment to a parent claim. Its content is
// itself a claim (ClaimID), which is what makes scoring recursive: an
// argument's conviction is the composed score of its content claim.
//
// The same content claim may be referenced by arguments under many
// parents, so the reference structure is a graph, not a tree.
type Argument struct {
	ID       uuid.UUID `json:"id"`
	ParentID uuid.UUID `json:"parent_id"` // claim being argued about
	ClaimID  uuid.UUID `json:"claim_id"`  // claim carrying this argument's content
	Side     Side      `json:"side"`

	// Independent quality sub-scores, each in [0,100]. Combined into a
	// single weight via geometric mean so a single near-zero factor
	// collapses the weight.
	EvidenceQuality float64 `json:"evidence_quality"`
	LogicalValidity float64 `json:"logical_validity"`
	Importance      float64 `json:"importance"`

	// DimensionID scopes the argument to one quality dimension of the
	// parent claim. Nil means the implicit overall dimension.
	DimensionID *uuid.UUID `json:"dimension_id,omitempty"`

	// Statement is the content claim's text, denormalized onto the
	// argument by snapshot reads so the uniqueness resolver can compare
	// siblings without extra lookups.
	Statement string `json:"statement,omitempty"`

	// Embedding is an optional pre-computed sentence embedding of the
	// statement, used by the semantic similarity strategy.
	Embedding []float32 `json:"-"`

	SubmittedAt time.Time `json:"submitted_at"`
}

// QualityUpdate is a partial update to an argument's quality sub-scores.
// Nil fields are left unchanged.
type QualityUpdate struct {
	EvidenceQuality *float64 `json:"evidence_quality,omitempty"`
	LogicalValidity *float64 `json:"logical_validity,omitempty"`
	Importance      *float64 `json:"importance,omitempty"`
}

// ValidateArgument checks an argument's declared side and quality
// sub-scores. Returns a *ValidationError wrapping ErrValidation.
func ValidateArgument(a Argument) error {
	if !ValidSide(a.Side) {
		return validationf("side", "must be %q or %q (got %q)", SideSupporting, SideOpposing, a.Side)
	}
	if err := ValidateQuality("evidence_quality", a.EvidenceQuality); err != nil {
		return err
	}
	if err := ValidateQuality("logical_validity", a.LogicalValidity); err != nil {
		return err
	}
	return ValidateQuality("importance", a.Importance)
}

// ValidateQuality checks that a quality sub-score is within [0,100].
func ValidateQuality(field string, v float64) error {
	if v < QualityMin || v > QualityMax || v != v { // v != v rejects NaN
		return validationf(field, "must be in [%g,%g] (got %v)", QualityMin, QualityMax, v)
	}
	return nil
}

// ValidateQualityUpdate checks the set fields of a partial quality update.
func ValidateQualityUpdate(u QualityUpdate) error {
	if u.EvidenceQuality == nil && u.LogicalValidity == nil && u.Importance == nil {
		return validationf("quality", "at least one sub-score must be set")
	}
	if u.EvidenceQuality != nil {
		if err := ValidateQuality("evidence_quality", *u.EvidenceQuality); err != nil {
			return err
		}
	}
	if u.LogicalValidity != nil {
		if err := ValidateQuality("logical_validity", *u.LogicalValidity); err != nil {
			return err
		}
	}
	if u.Importance != nil {
		if err := ValidateQuality("importance", *u.Importance); err != nil {
			return err
		}
	}
	return nil
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
