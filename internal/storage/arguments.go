package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
)

const argumentColumns = `a.id, a.parent_id, a.claim_id, a.side,
	a.evidence_quality, a.logical_validity, a.importance,
	a.dimension_id, c.statement, c.embedding, a.submitted_at`

func scanArgument(row pgx.Row) (model.Argument, error) {
	var (
		a   model.Argument
		emb *pgvector.Vector
	)
	err := row.Scan(&a.ID, &a.ParentID, &a.ClaimID, &a.Side,
		&a.EvidenceQuality, &a.LogicalValidity, &a.Importance,
		&a.DimensionID, &a.Statement, &emb, &a.SubmittedAt)
	if err != nil {
		return model.Argument{}, err
	}
	a.Embedding = sliceOrNil(emb)
	return a, nil
}

// ListArguments implements graph.Store. The content claim's statement
// and embedding are denormalized onto each argument so the uniqueness
// resolver needs no further lookups.
func (db *DB) ListArguments(ctx context.Context, claimID uuid.UUID) ([]model.Argument, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+argumentColumns+`
		 FROM arguments a JOIN claims c ON c.id = a.claim_id
		 WHERE a.parent_id = $1
		 ORDER BY a.submitted_at, a.id`, claimID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list arguments: %w", err)
	}
	defer rows.Close()

	var args []model.Argument
	for rows.Next() {
		a, err := scanArgument(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan argument: %w", err)
		}
		args = append(args, a)
	}
	return args, rows.Err()
}

// AttachArgument implements graph.Mutator.
func (db *DB) AttachArgument(ctx context.Context, a model.Argument) error {
	if err := model.ValidateArgument(a); err != nil {
		return err
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO arguments (id, parent_id, claim_id, side,
		 evidence_quality, logical_validity, importance, dimension_id, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.ParentID, a.ClaimID, string(a.Side),
		a.EvidenceQuality, a.LogicalValidity, a.Importance, a.DimensionID, a.SubmittedAt,
	)
	if isPgError(err, pgForeignKeyViolation) {
		// Insert-time FK failure means the parent or content claim does
		// not exist.
		return graph.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: attach argument: %w", err)
	}
	db.mutated(ctx, a.ParentID)
	return nil
}

// GetArgument implements graph.Mutator.
func (db *DB) GetArgument(ctx context.Context, argumentID uuid.UUID) (model.Argument, error) {
	a, err := scanArgument(db.pool.QueryRow(ctx,
		`SELECT `+argumentColumns+`
		 FROM arguments a JOIN claims c ON c.id = a.claim_id
		 WHERE a.id = $1`, argumentID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Argument{}, graph.ErrNotFound
	}
	if err != nil {
		return model.Argument{}, fmt.Errorf("storage: get argument: %w", err)
	}
	return a, nil
}

// UpdateArgumentQuality implements graph.Mutator. Nil fields keep their
// stored values.
func (db *DB) UpdateArgumentQuality(ctx context.Context, argumentID uuid.UUID, u model.QualityUpdate) (model.Argument, error) {
	if err := model.ValidateQualityUpdate(u); err != nil {
		return model.Argument{}, err
	}

	var a model.Argument
	err := db.pool.QueryRow(ctx,
		`UPDATE arguments SET
		   evidence_quality = COALESCE($2, evidence_quality),
		   logical_validity = COALESCE($3, logical_validity),
		   importance = COALESCE($4, importance)
		 WHERE id = $1
		 RETURNING id, parent_id, claim_id, side,
		   evidence_quality, logical_validity, importance, dimension_id, submitted_at`,
		argumentID, u.EvidenceQuality, u.LogicalValidity, u.Importance,
	).Scan(&a.ID, &a.ParentID, &a.ClaimID, &a.Side,
		&a.EvidenceQuality, &a.LogicalValidity, &a.Importance,
		&a.DimensionID, &a.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Argument{}, graph.ErrNotFound
	}
	if err != nil {
		return model.Argument{}, fmt.Errorf("storage: update argument quality: %w", err)
	}
	db.mutated(ctx, a.ParentID)
	return a, nil
}

// DetachArgument implements graph.Mutator.
func (db *DB) DetachArgument(ctx context.Context, argumentID uuid.UUID) (model.Argument, error) {
	var a model.Argument
	err := db.pool.QueryRow(ctx,
		`DELETE FROM arguments WHERE id = $1
		 RETURNING id, parent_id, claim_id, side,
		   evidence_quality, logical_validity, importance, dimension_id, submitted_at`,
		argumentID,
	).Scan(&a.ID, &a.ParentID, &a.ClaimID, &a.Side,
		&a.EvidenceQuality, &a.LogicalValidity, &a.Importance,
		&a.DimensionID, &a.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Argument{}, graph.ErrNotFound
	}
	if err != nil {
		return model.Argument{}, fmt.Errorf("storage: detach argument: %w", err)
	}
	db.mutated(ctx, a.ParentID)
	return a, nil
}
