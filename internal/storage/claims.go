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

// CreateClaim implements graph.Mutator.
func (db *DB) CreateClaim(ctx context.Context, c model.Claim) error {
	if c.Status == "" {
		c.Status = model.ClaimStatusActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO claims (id, statement, category, status, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Statement, c.Category, string(c.Status), vectorOrNil(c.Embedding), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create claim: %w", err)
	}
	return nil
}

// GetClaim implements graph.Store.
func (db *DB) GetClaim(ctx context.Context, id uuid.UUID) (model.Claim, error) {
	var (
		c   model.Claim
		emb *pgvector.Vector
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, statement, category, status, embedding, created_at
		 FROM claims WHERE id = $1`, id,
	).Scan(&c.ID, &c.Statement, &c.Category, &c.Status, &emb, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Claim{}, graph.ErrNotFound
	}
	if err != nil {
		return model.Claim{}, fmt.Errorf("storage: get claim: %w", err)
	}
	c.Embedding = sliceOrNil(emb)
	return c, nil
}

// SetClaimStatus implements graph.Mutator.
func (db *DB) SetClaimStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE claims SET status = $2 WHERE id = $1`, id, string(status),
	)
	if err != nil {
		return fmt.Errorf("storage: set claim status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return graph.ErrNotFound
	}
	return nil
}

// DeleteClaim implements graph.Mutator. The arguments.claim_id foreign
// key has no cascade, so deleting a claim still used as argument
// content is rejected by the database itself.
func (db *DB) DeleteClaim(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM claims WHERE id = $1`, id)
	if isPgError(err, pgForeignKeyViolation) {
		return graph.ErrReferenced
	}
	if err != nil {
		return fmt.Errorf("storage: delete claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return graph.ErrNotFound
	}
	return nil
}

// ListClaimIDs implements graph.Store.
func (db *DB) ListClaimIDs(ctx context.Context, activeOnly bool) ([]uuid.UUID, error) {
	query := `SELECT id FROM claims ORDER BY id`
	if activeOnly {
		query = `SELECT id FROM claims WHERE status = 'active' ORDER BY id`
	}
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("storage: list claim ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan claim id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListParents implements graph.Store: claims whose scores depend
// directly on this one, via argument content or a linkage debate.
func (db *DB) ListParents(ctx context.Context, claimID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT DISTINCT parent_id FROM arguments WHERE claim_id = $1
		UNION
		SELECT DISTINCT to_id FROM linkages WHERE debate_claim_id = $1`,
		claimID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list parents: %w", err)
	}
	defer rows.Close()

	var parents []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan parent id: %w", err)
		}
		parents = append(parents, id)
	}
	return parents, rows.Err()
}
