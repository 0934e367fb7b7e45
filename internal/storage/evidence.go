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

// ListEvidence implements graph.Store.
func (db *DB) ListEvidence(ctx context.Context, claimID uuid.UUID) ([]model.Evidence, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, target_id, side, tier, credibility, verification, linkage,
		   statement, source_uri, embedding, submitted_at
		 FROM evidence WHERE target_id = $1
		 ORDER BY submitted_at, id`, claimID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list evidence: %w", err)
	}
	defer rows.Close()

	var items []model.Evidence
	for rows.Next() {
		var (
			e   model.Evidence
			emb *pgvector.Vector
		)
		if err := rows.Scan(&e.ID, &e.TargetID, &e.Side, &e.Tier, &e.Credibility,
			&e.Verification, &e.Linkage, &e.Statement, &e.SourceURI, &emb, &e.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan evidence: %w", err)
		}
		e.Embedding = sliceOrNil(emb)
		items = append(items, e)
	}
	return items, rows.Err()
}

// AttachEvidence implements graph.Mutator.
func (db *DB) AttachEvidence(ctx context.Context, e model.Evidence) error {
	if err := model.ValidateEvidence(e); err != nil {
		return err
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO evidence (id, target_id, side, tier, credibility, verification,
		 linkage, statement, source_uri, embedding, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.TargetID, string(e.Side), string(e.Tier), e.Credibility,
		string(e.Verification), e.Linkage, e.Statement, e.SourceURI,
		vectorOrNil(e.Embedding), e.SubmittedAt,
	)
	if isPgError(err, pgForeignKeyViolation) {
		return graph.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: attach evidence: %w", err)
	}
	db.mutated(ctx, e.TargetID)
	return nil
}

// SetEvidenceVerification implements graph.Mutator.
func (db *DB) SetEvidenceVerification(ctx context.Context, evidenceID uuid.UUID, v model.Verification) (model.Evidence, error) {
	if !model.ValidVerification(v) {
		return model.Evidence{}, &model.ValidationError{Field: "verification", Message: "unknown verification status"}
	}

	var e model.Evidence
	err := db.pool.QueryRow(ctx,
		`UPDATE evidence SET verification = $2 WHERE id = $1
		 RETURNING id, target_id, side, tier, credibility, verification, linkage,
		   statement, source_uri, submitted_at`,
		evidenceID, string(v),
	).Scan(&e.ID, &e.TargetID, &e.Side, &e.Tier, &e.Credibility,
		&e.Verification, &e.Linkage, &e.Statement, &e.SourceURI, &e.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Evidence{}, graph.ErrNotFound
	}
	if err != nil {
		return model.Evidence{}, fmt.Errorf("storage: set evidence verification: %w", err)
	}
	db.mutated(ctx, e.TargetID)
	return e, nil
}
