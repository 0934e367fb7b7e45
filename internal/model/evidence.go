package model

import (
	"time"

	"github.com/google/uuid"
)

// EvidenceTier is the credibility tier of an evidence source. The tier
// set is closed: adding a tier means adding a constant and a multiplier
// table row, with exhaustiveness enforced by TierMultiplier.
type EvidenceTier string

const (
	TierPeerReviewed EvidenceTier = "peer_reviewed"
	TierExpert       EvidenceTier = "expert"
	TierJournalism   EvidenceTier = "journalism"
	TierOpinion      EvidenceTier = "opinion"
)

// tierMultipliers maps each tier to its fixed weight multiplier.
// Ordered peer_reviewed > expert > journalism > opinion.
var tierMultipliers = map[EvidenceTier]float64{
	TierPeerReviewed: 1.00,
	TierExpert:       0.85,
	TierJournalism:   0.65,
	TierOpinion:      0.40,
}

// TierMultiplier returns the fixed weight multiplier for a tier.
// Unknown tiers report ok=false so callers surface the bad input
// instead of silently defaulting.
func TierMultiplier(t EvidenceTier) (mult float64, ok bool) {
	mult, ok = tierMultipliers[t]
	return mult, ok
}

// ValidTier reports whether t is a known evidence tier.
func ValidTier(t EvidenceTier) bool {
	_, ok := tierMultipliers[t]
	return ok
}

// Verification is the review status of an evidence item.
type Verification string

const (
	VerificationUnverified Verification = "unverified"
	VerificationVerified   Verification = "verified"
	VerificationDisputed   Verification = "disputed"
	VerificationDebunked   Verification = "debunked"
)

// verificationMultipliers discounts evidence by review status. Debunked
// evidence contributes nothing but stays attached so the breakdown can
// show it was considered and zeroed.
var verificationMultipliers = map[Verification]float64{
	VerificationVerified:   1.00,
	VerificationUnverified: 0.70,
	VerificationDisputed:   0.40,
	VerificationDebunked:   0.00,
}

// VerificationMultiplier returns the weight multiplier for a
// verification status.
func VerificationMultiplier(v Verification) (mult float64, ok bool) {
	mult, ok = verificationMultipliers[v]
	return mult, ok
}

// ValidVerification reports whether v is a known verification status.
func ValidVerification(v Verification) bool {
	_, ok := verificationMultipliers[v]
	return ok
}

// Linkage strength bounds. Negative strength means the item actually
// undermines the target it is tagged as supporting.
const (
	LinkageMin = -1.0
	LinkageMax = 1.0
)

// Evidence is a leaf-level support item attached to an argument or
// directly to a claim. Unlike arguments it does not recurse: its
// contribution is credibility x tier multiplier x verification
// multiplier, signed by its resolved linkage.
type Evidence struct {
	ID       uuid.UUID `json:"id"`
	TargetID uuid.UUID `json:"target_id"` // argument's content claim or a claim directly
	Side     Side      `json:"side"`

	Tier         EvidenceTier `json:"tier"`
	Credibility  float64      `json:"credibility"` // [0,100]
	Verification Verification `json:"verification"`

	// Linkage is how relevant this item is to its target, in [-1,1],
	// independent of the item's own credibility. A negative value flags
	// an item filed as supporting that actually undercuts the target.
	Linkage float64 `json:"linkage"`

	Statement string    `json:"statement,omitempty"`
	Embedding []float32 `json:"-"`
	SourceURI string    `json:"source_uri,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
}

// ValidateEvidence checks an evidence item at the mutation boundary.
func ValidateEvidence(e Evidence) error {
	if !ValidSide(e.Side) {
		return validationf("side", "must be %q or %q (got %q)", SideSupporting, SideOpposing, e.Side)
	}
	if !ValidTier(e.Tier) {
		return validationf("tier", "unknown evidence tier %q", e.Tier)
	}
	if !ValidVerification(e.Verification) {
		return validationf("verification", "unknown verification status %q", e.Verification)
	}
	if err := ValidateQuality("credibility", e.Credibility); err != nil {
		return err
	}
	return ValidateLinkage("linkage", e.Linkage)
}

// ValidateLinkage checks that a linkage strength is within [-1,1].
func ValidateLinkage(field string, v float64) error {
	if v < LinkageMin || v > LinkageMax || v != v {
		return validationf(field, "must be in [%g,%g] (got %v)", LinkageMin, LinkageMax, v)
	}
	return nil
}

// LinkageEdge quantifies how relevant an argument or evidence item is to
// its target, independent of the item's own truth or quality. When the
// linkage itself has been argued over, DebateClaimID points at the claim
// whose composed score resolves the strength (linkage is recursive too).
type LinkageEdge struct {
	FromID   uuid.UUID `json:"from_id"`
	ToID     uuid.UUID `json:"to_id"`
	Strength float64   `json:"strength"` // [-1,1]

	// Direct distinguishes explicit attachment (baseline 1.0) from
	// indirect or inferred attachment (lower configured baseline).
	Direct bool `json:"direct"`

	// DebateClaimID, when set, names the claim whose score overrides
	// Strength: strength = (composed score - 50) / 50.
	DebateClaimID *uuid.UUID `json:"debate_claim_id,omitempty"`
}
