package model

import (
	"time"

	"github.com/google/uuid"
)

// ClaimStatus is the lifecycle status of a claim.
type ClaimStatus string

const (
	ClaimStatusActive   ClaimStatus = "active"
	ClaimStatusArchived ClaimStatus = "archived"
	ClaimStatusFlagged  ClaimStatus = "flagged"
)

// ValidClaimStatus reports whether s is a known lifecycle status.
func ValidClaimStatus(s ClaimStatus) bool {
	switch s {
	case ClaimStatusActive, ClaimStatusArchived, ClaimStatusFlagged:
		return true
	}
	return false
}

// Claim is a stated proposition with a computed score. Arguments are
// themselves claims, so the claim graph is recursive and may contain
// cycles; the engine tolerates them via depth-bounded composition.
type Claim struct {
	ID        uuid.UUID   `json:"id"`
	Statement string      `json:"statement"`
	Category  string      `json:"category,omitempty"`
	Status    ClaimStatus `json:"status"`

	// Embedding is the statement's sentence embedding, populated by the
	// configured provider and denormalized onto arguments at read time.
	Embedding []float32 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Side is the declared direction of an argument or evidence item
// relative to its target claim.
type Side string

const (
	SideSupporting Side = "supporting"
	SideOpposing   Side = "opposing"
)

// Opposite returns the other side. Used when a negative resolved linkage
// flips an item's effective direction.
func (s Side) Opposite() Side {
	if s == SideSupporting {
		return SideOpposing
	}
	return SideSupporting
}

// ValidSide reports whether s is a known side.
func ValidSide(s Side) bool {
	return s == SideSupporting || s == SideOpposing
}
