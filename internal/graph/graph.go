// Package graph defines the read contract the scoring engine consumes.
//
// The engine is pure computation over a snapshot of the claim graph; all
// I/O happens behind this interface. Postgres and SQLite implementations
// live in internal/storage, and Memory in this package backs tests and
// embedded in-process use.
package graph

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/openargument/reasonrank/internal/model"
)

// ErrNotFound is returned when a requested node does not exist.
var ErrNotFound = errors.New("graph: not found")

// ErrReferenced is returned when deleting a claim that other claims
// still depend on as a sub-argument.
var ErrReferenced = errors.New("graph: claim is referenced by other claims")

// Store is the snapshot read API over the claim/argument/evidence graph.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetClaim returns one claim by id.
	GetClaim(ctx context.Context, id uuid.UUID) (model.Claim, error)

	// ListArguments returns the arguments attached to a claim, with
	// content statements and embeddings denormalized onto them.
	ListArguments(ctx context.Context, claimID uuid.UUID) ([]model.Argument, error)

	// ListEvidence returns evidence attached to a claim. Evidence filed
	// against an argument is stored against the argument's content claim.
	ListEvidence(ctx context.Context, claimID uuid.UUID) ([]model.Evidence, error)

	// ListDimensions returns a claim's declared scoring dimensions,
	// empty for flat pro/con claims.
	ListDimensions(ctx context.Context, claimID uuid.UUID) ([]model.Dimension, error)

	// GetLinkage returns the linkage edge from an item to its target,
	// ok=false when none was ever recorded (callers apply the baseline).
	GetLinkage(ctx context.Context, fromID, toID uuid.UUID) (model.LinkageEdge, bool, error)

	// ListParents returns the claims that directly depend on the given
	// claim: parents of arguments whose content it is, and targets of
	// linkage debates it resolves. Used by ancestor invalidation.
	ListParents(ctx context.Context, claimID uuid.UUID) ([]uuid.UUID, error)

	// ListClaimIDs returns all claim ids, for the global propagator.
	// Archived and flagged claims are excluded when activeOnly is set.
	ListClaimIDs(ctx context.Context, activeOnly bool) ([]uuid.UUID, error)
}

// Mutator is the write API. Every mutation must trigger invalidation of
// the owning claim before it returns; implementations call the hook
// installed via OnMutate.
type Mutator interface {
	CreateClaim(ctx context.Context, c model.Claim) error
	SetClaimStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus) error
	// DeleteClaim fails with ErrReferenced while other claims reference
	// the claim as a sub-argument (referential integrity invariant).
	DeleteClaim(ctx context.Context, id uuid.UUID) error

	AttachArgument(ctx context.Context, a model.Argument) error
	UpdateArgumentQuality(ctx context.Context, argumentID uuid.UUID, u model.QualityUpdate) (model.Argument, error)
	DetachArgument(ctx context.Context, argumentID uuid.UUID) (model.Argument, error)
	GetArgument(ctx context.Context, argumentID uuid.UUID) (model.Argument, error)

	AttachEvidence(ctx context.Context, e model.Evidence) error
	SetEvidenceVerification(ctx context.Context, evidenceID uuid.UUID, v model.Verification) (model.Evidence, error)

	UpsertLinkage(ctx context.Context, edge model.LinkageEdge) error
	CreateDimension(ctx context.Context, d model.Dimension) error
}
