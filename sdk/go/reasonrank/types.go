package reasonrank

import (
	"time"

	"github.com/google/uuid"
)

// Side is an argument's or evidence item's declared stance.
type Side string

const (
	SideSupporting Side = "supporting"
	SideOpposing   Side = "opposing"
)

// EvidenceTier grades a source's authority.
type EvidenceTier string

const (
	TierPeerReviewed EvidenceTier = "peer_reviewed"
	TierExpert       EvidenceTier = "expert"
	TierJournalism   EvidenceTier = "journalism"
	TierOpinion      EvidenceTier = "opinion"
)

// Verification is an evidence item's fact-check status.
type Verification string

const (
	VerificationVerified   Verification = "verified"
	VerificationUnverified Verification = "unverified"
	VerificationDisputed   Verification = "disputed"
	VerificationDebunked   Verification = "debunked"
)

// ClaimStatus is a claim's lifecycle state.
type ClaimStatus string

const (
	ClaimStatusActive   ClaimStatus = "active"
	ClaimStatusArchived ClaimStatus = "archived"
	ClaimStatusFlagged  ClaimStatus = "flagged"
)

// RecalcMode selects between on-demand subtree composition and the
// damped global fixed-point pass.
type RecalcMode string

const (
	RecalcLocal  RecalcMode = "local"
	RecalcGlobal RecalcMode = "global"
)

// Claim is a scoreable statement in the argument graph.
type Claim struct {
	ID        uuid.UUID   `json:"id"`
	Statement string      `json:"statement"`
	Category  string      `json:"category,omitempty"`
	Status    ClaimStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// Argument attaches a content claim to a parent claim on one side.
type Argument struct {
	ID              uuid.UUID  `json:"id"`
	ParentID        uuid.UUID  `json:"parent_id"`
	ClaimID         uuid.UUID  `json:"claim_id"`
	Side            Side       `json:"side"`
	EvidenceQuality float64    `json:"evidence_quality"`
	LogicalValidity float64    `json:"logical_validity"`
	Importance      float64    `json:"importance"`
	DimensionID     *uuid.UUID `json:"dimension_id,omitempty"`
	Statement       string     `json:"statement,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
}

// Evidence is a leaf item filed against a claim.
type Evidence struct {
	ID           uuid.UUID    `json:"id"`
	TargetID     uuid.UUID    `json:"target_id"`
	Side         Side         `json:"side"`
	Tier         EvidenceTier `json:"tier"`
	Credibility  float64      `json:"credibility"`
	Verification Verification `json:"verification"`
	Linkage      float64      `json:"linkage"`
	Statement    string       `json:"statement,omitempty"`
	SourceURI    string       `json:"source_uri,omitempty"`
	SubmittedAt  time.Time    `json:"submitted_at"`
}

// LinkageEdge records how strongly one claim's outcome bears on another.
type LinkageEdge struct {
	FromID        uuid.UUID  `json:"from_id"`
	ToID          uuid.UUID  `json:"to_id"`
	Strength      float64    `json:"strength"`
	Direct        bool       `json:"direct"`
	DebateClaimID *uuid.UUID `json:"debate_claim_id,omitempty"`
}

// Score is a claim's cached scoring result. Overall is in [0,100] with
// 50 neutral; Stale means a recomputation is pending and the value may
// lag the latest mutations.
type Score struct {
	ClaimID    uuid.UUID          `json:"claim_id"`
	Overall    float64            `json:"overall"`
	Dimensions map[string]float64 `json:"dimensions,omitempty"`
	Stale      bool               `json:"stale"`
	ComputedAt time.Time          `json:"last_computed"`
}

// Contribution is one line of a breakdown.
type Contribution struct {
	ItemID        uuid.UUID `json:"item_id"`
	Kind          string    `json:"kind"`
	Dimension     string    `json:"dimension"`
	Statement     string    `json:"statement,omitempty"`
	DeclaredSide  Side      `json:"declared_side"`
	EffectiveSide Side      `json:"effective_side"`
	SideFlipped   bool      `json:"side_flipped"`
	RawWeight     float64   `json:"raw_weight"`
	Uniqueness    float64   `json:"uniqueness"`
	Novelty       float64   `json:"novelty"`
	Linkage       float64   `json:"linkage"`
	ChildScore    float64   `json:"child_score,omitempty"`
	Depth         int       `json:"depth"`
	Discount      float64   `json:"depth_discount"`
	Value         float64   `json:"value"`
}

// DimensionBreakdown is the aggregation summary for one dimension.
type DimensionBreakdown struct {
	Kind     string  `json:"kind"`
	Weight   float64 `json:"weight"`
	Score    float64 `json:"score"`
	ProTotal float64 `json:"pro_total"`
	ConTotal float64 `json:"con_total"`
	Balance  float64 `json:"balance"`
}

// Breakdown is the full per-item account of one claim's score.
type Breakdown struct {
	ClaimID       uuid.UUID            `json:"claim_id"`
	Overall       float64              `json:"overall"`
	Dimensions    []DimensionBreakdown `json:"dimensions"`
	Contributions []Contribution       `json:"contributions"`
	ComputedAt    time.Time            `json:"computed_at"`
}

// CreateClaimRequest is the body for creating a claim.
type CreateClaimRequest struct {
	Statement string `json:"statement"`
	Category  string `json:"category,omitempty"`
}

// AttachArgumentRequest is the body for attaching an argument. Either
// ClaimID (an existing claim as content) or Statement (a new content
// claim) must be set.
type AttachArgumentRequest struct {
	ClaimID         *uuid.UUID `json:"claim_id,omitempty"`
	Statement       string     `json:"statement,omitempty"`
	Side            Side       `json:"side"`
	EvidenceQuality float64    `json:"evidence_quality"`
	LogicalValidity float64    `json:"logical_validity"`
	Importance      float64    `json:"importance"`
	DimensionID     *uuid.UUID `json:"dimension_id,omitempty"`
}

// AttachEvidenceRequest is the body for attaching evidence.
type AttachEvidenceRequest struct {
	Side         Side         `json:"side"`
	Tier         EvidenceTier `json:"tier"`
	Credibility  float64      `json:"credibility"`
	Verification Verification `json:"verification,omitempty"`
	Linkage      *float64     `json:"linkage,omitempty"`
	Statement    string       `json:"statement,omitempty"`
	SourceURI    string       `json:"source_uri,omitempty"`
}

// QualityUpdate carries partial quality changes; nil fields keep their
// current values.
type QualityUpdate struct {
	EvidenceQuality *float64 `json:"evidence_quality,omitempty"`
	LogicalValidity *float64 `json:"logical_validity,omitempty"`
	Importance      *float64 `json:"importance,omitempty"`
}

// InvalidateResponse lists the claims marked stale by an invalidation.
type InvalidateResponse struct {
	ClaimID  uuid.UUID   `json:"claim_id"`
	Affected []uuid.UUID `json:"affected"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptime_sec"`
	Database  string `json:"database"`
}
