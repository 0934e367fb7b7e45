package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
)

// GetLinkage implements graph.Store.
func (db *DB) GetLinkage(ctx context.Context, fromID, toID uuid.UUID) (model.LinkageEdge, bool, error) {
	var edge model.LinkageEdge
	err := db.pool.QueryRow(ctx,
		`SELECT from_id, to_id, strength, direct, debate_claim_id
		 FROM linkages WHERE from_id = $1 AND to_id = $2`, fromID, toID,
	).Scan(&edge.FromID, &edge.ToID, &edge.Strength, &edge.Direct, &edge.DebateClaimID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LinkageEdge{}, false, nil
	}
	if err != nil {
		return model.LinkageEdge{}, false, fmt.Errorf("storage: get linkage: %w", err)
	}
	return edge, true, nil
}

// UpsertLinkage implements graph.Mutator.
func (db *DB) UpsertLinkage(ctx context.Context, edge model.LinkageEdge) error {
	if err := model.ValidateLinkage("strength", edge.Strength); err != nil {
		return err
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO linkages (from_id, to_id, strength, direct, debate_claim_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (from_id, to_id) DO UPDATE SET
		   strength = EXCLUDED.strength,
		   direct = EXCLUDED.direct,
		   debate_claim_id = EXCLUDED.debate_claim_id`,
		edge.FromID, edge.ToID, edge.Strength, edge.Direct, edge.DebateClaimID,
	)
	if isPgError(err, pgForeignKeyViolation) {
		return graph.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: upsert linkage: %w", err)
	}
	db.mutated(ctx, edge.ToID)
	return nil
}

// ListDimensions implements graph.Store.
func (db *DB) ListDimensions(ctx context.Context, claimID uuid.UUID) ([]model.Dimension, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, claim_id, kind, weight FROM dimensions
		 WHERE claim_id = $1 ORDER BY kind`, claimID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list dimensions: %w", err)
	}
	defer rows.Close()

	var dims []model.Dimension
	for rows.Next() {
		var d model.Dimension
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.Kind, &d.Weight); err != nil {
			return nil, fmt.Errorf("storage: scan dimension: %w", err)
		}
		dims = append(dims, d)
	}
	return dims, rows.Err()
}

// CreateDimension implements graph.Mutator.
func (db *DB) CreateDimension(ctx context.Context, d model.Dimension) error {
	if err := model.ValidateDimension(d); err != nil {
		return err
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO dimensions (id, claim_id, kind, weight)
		 VALUES ($1, $2, $3, $4)`,
		d.ID, d.ClaimID, string(d.Kind), d.Weight,
	)
	if isPgError(err, pgForeignKeyViolation) {
		return graph.ErrNotFound
	}
	if isPgError(err, pgUniqueViolation) {
		return &model.ValidationError{Field: "kind", Message: "dimension already declared for this claim"}
	}
	if err != nil {
		return fmt.Errorf("storage: create dimension: %w", err)
	}
	db.mutated(ctx, d.ClaimID)
	return nil
}
