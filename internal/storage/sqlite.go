package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
)

// Lite is the embedded SQLite implementation of graph.Store and
// graph.Mutator, used in local mode when no DATABASE_URL is set.
// Embeddings are stored as JSON arrays; there is no vector index, so
// local mode always runs the full pairwise uniqueness comparison.
type Lite struct {
	db       *sql.DB
	logger   *slog.Logger
	onMutate func(claimID uuid.UUID)
}

const liteSchema = `
CREATE TABLE IF NOT EXISTS claims (
	id TEXT PRIMARY KEY,
	statement TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	embedding TEXT,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS dimensions (
	id TEXT PRIMARY KEY,
	claim_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	weight REAL NOT NULL,
	UNIQUE (claim_id, kind)
);
CREATE TABLE IF NOT EXISTS arguments (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	claim_id TEXT NOT NULL REFERENCES claims(id),
	side TEXT NOT NULL,
	evidence_quality REAL NOT NULL,
	logical_validity REAL NOT NULL,
	importance REAL NOT NULL,
	dimension_id TEXT REFERENCES dimensions(id) ON DELETE SET NULL,
	submitted_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS evidence (
	id TEXT PRIMARY KEY,
	target_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	side TEXT NOT NULL,
	tier TEXT NOT NULL,
	credibility REAL NOT NULL,
	verification TEXT NOT NULL DEFAULT 'unverified',
	linkage REAL NOT NULL DEFAULT 1.0,
	statement TEXT NOT NULL DEFAULT '',
	source_uri TEXT NOT NULL DEFAULT '',
	embedding TEXT,
	submitted_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS linkages (
	from_id TEXT NOT NULL,
	to_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
	strength REAL NOT NULL DEFAULT 0,
	direct INTEGER NOT NULL DEFAULT 1,
	debate_claim_id TEXT REFERENCES claims(id) ON DELETE SET NULL,
	PRIMARY KEY (from_id, to_id)
);
CREATE INDEX IF NOT EXISTS idx_arguments_parent ON arguments(parent_id);
CREATE INDEX IF NOT EXISTS idx_arguments_claim ON arguments(claim_id);
CREATE INDEX IF NOT EXISTS idx_evidence_target ON evidence(target_id);
CREATE INDEX IF NOT EXISTS idx_dimensions_claim ON dimensions(claim_id);
CREATE INDEX IF NOT EXISTS idx_linkages_debate ON linkages(debate_claim_id);
`

// OpenLite opens (creating if needed) the local database file and
// applies the schema. ":memory:" gives an ephemeral store for tests.
func OpenLite(path string, logger *slog.Logger) (*Lite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent mutations.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(liteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: apply sqlite schema: %w", err)
	}
	return &Lite{db: db, logger: logger}, nil
}

// OnMutate installs the invalidation hook. Must be set before serving.
func (l *Lite) OnMutate(fn func(claimID uuid.UUID)) { l.onMutate = fn }

func (l *Lite) mutated(claimID uuid.UUID) {
	if l.onMutate != nil {
		l.onMutate(claimID)
	}
}

// Ping checks the database file is usable.
func (l *Lite) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

// Close closes the database.
func (l *Lite) Close() error { return l.db.Close() }

func isLiteFKViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func encodeEmbedding(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	b, err := json.Marshal(embedding)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeEmbedding(raw sql.NullString) []float32 {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(raw.String), &embedding); err != nil {
		return nil
	}
	return embedding
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func scanNullUUID(raw sql.NullString) (*uuid.UUID, error) {
	if !raw.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(raw.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// CreateClaim implements graph.Mutator.
func (l *Lite) CreateClaim(ctx context.Context, c model.Claim) error {
	if c.Status == "" {
		c.Status = model.ClaimStatusActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO claims (id, statement, category, status, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Statement, c.Category, string(c.Status),
		encodeEmbedding(c.Embedding), c.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("storage: create claim: %w", err)
	}
	return nil
}

// GetClaim implements graph.Store.
func (l *Lite) GetClaim(ctx context.Context, id uuid.UUID) (model.Claim, error) {
	var (
		c         model.Claim
		rawID     string
		emb       sql.NullString
		createdAt int64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, statement, category, status, embedding, created_at
		 FROM claims WHERE id = ?`, id.String(),
	).Scan(&rawID, &c.Statement, &c.Category, &c.Status, &emb, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Claim{}, graph.ErrNotFound
	}
	if err != nil {
		return model.Claim{}, fmt.Errorf("storage: get claim: %w", err)
	}
	c.ID, err = uuid.Parse(rawID)
	if err != nil {
		return model.Claim{}, fmt.Errorf("storage: parse claim id: %w", err)
	}
	c.Embedding = decodeEmbedding(emb)
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	return c, nil
}

// SetClaimStatus implements graph.Mutator.
func (l *Lite) SetClaimStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE claims SET status = ? WHERE id = ?`, string(status), id.String())
	if err != nil {
		return fmt.Errorf("storage: set claim status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return graph.ErrNotFound
	}
	return nil
}

// DeleteClaim implements graph.Mutator.
func (l *Lite) DeleteClaim(ctx context.Context, id uuid.UUID) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM claims WHERE id = ?`, id.String())
	if isLiteFKViolation(err) {
		return graph.ErrReferenced
	}
	if err != nil {
		return fmt.Errorf("storage: delete claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return graph.ErrNotFound
	}
	return nil
}

// ListClaimIDs implements graph.Store.
func (l *Lite) ListClaimIDs(ctx context.Context, activeOnly bool) ([]uuid.UUID, error) {
	query := `SELECT id FROM claims ORDER BY id`
	if activeOnly {
		query = `SELECT id FROM claims WHERE status = 'active' ORDER BY id`
	}
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("storage: list claim ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storage: scan claim id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("storage: parse claim id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListParents implements graph.Store.
func (l *Lite) ListParents(ctx context.Context, claimID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT parent_id FROM arguments WHERE claim_id = ?
		UNION
		SELECT DISTINCT to_id FROM linkages WHERE debate_claim_id = ?`,
		claimID.String(), claimID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list parents: %w", err)
	}
	defer rows.Close()

	var parents []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storage: scan parent id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("storage: parse parent id: %w", err)
		}
		parents = append(parents, id)
	}
	return parents, rows.Err()
}

// ListArguments implements graph.Store.
func (l *Lite) ListArguments(ctx context.Context, claimID uuid.UUID) ([]model.Argument, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT a.id, a.parent_id, a.claim_id, a.side,
		   a.evidence_quality, a.logical_validity, a.importance,
		   a.dimension_id, c.statement, c.embedding, a.submitted_at
		 FROM arguments a JOIN claims c ON c.id = a.claim_id
		 WHERE a.parent_id = ?
		 ORDER BY a.submitted_at, a.id`, claimID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list arguments: %w", err)
	}
	defer rows.Close()

	var args []model.Argument
	for rows.Next() {
		a, err := scanLiteArgument(rows)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, rows.Err()
}

func scanLiteArgument(rows *sql.Rows) (model.Argument, error) {
	var (
		a                  model.Argument
		id, parent, claim  string
		dimID, emb         sql.NullString
		submittedAt        int64
	)
	if err := rows.Scan(&id, &parent, &claim, &a.Side,
		&a.EvidenceQuality, &a.LogicalValidity, &a.Importance,
		&dimID, &a.Statement, &emb, &submittedAt,
	); err != nil {
		return model.Argument{}, fmt.Errorf("storage: scan argument: %w", err)
	}

	var err error
	if a.ID, err = uuid.Parse(id); err != nil {
		return model.Argument{}, fmt.Errorf("storage: parse argument id: %w", err)
	}
	if a.ParentID, err = uuid.Parse(parent); err != nil {
		return model.Argument{}, fmt.Errorf("storage: parse parent id: %w", err)
	}
	if a.ClaimID, err = uuid.Parse(claim); err != nil {
		return model.Argument{}, fmt.Errorf("storage: parse content claim id: %w", err)
	}
	if a.DimensionID, err = scanNullUUID(dimID); err != nil {
		return model.Argument{}, fmt.Errorf("storage: parse dimension id: %w", err)
	}
	a.Embedding = decodeEmbedding(emb)
	a.SubmittedAt = time.Unix(0, submittedAt).UTC()
	return a, nil
}

// AttachArgument implements graph.Mutator.
func (l *Lite) AttachArgument(ctx context.Context, a model.Argument) error {
	if err := model.ValidateArgument(a); err != nil {
		return err
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO arguments (id, parent_id, claim_id, side,
		 evidence_quality, logical_validity, importance, dimension_id, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.ParentID.String(), a.ClaimID.String(), string(a.Side),
		a.EvidenceQuality, a.LogicalValidity, a.Importance,
		nullUUID(a.DimensionID), a.SubmittedAt.UnixNano(),
	)
	if isLiteFKViolation(err) {
		return graph.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: attach argument: %w", err)
	}
	l.mutated(a.ParentID)
	return nil
}

// GetArgument implements graph.Mutator.
func (l *Lite) GetArgument(ctx context.Context, argumentID uuid.UUID) (model.Argument, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT a.id, a.parent_id, a.claim_id, a.side,
		   a.evidence_quality, a.logical_validity, a.importance,
		   a.dimension_id, c.statement, c.embedding, a.submitted_at
		 FROM arguments a JOIN claims c ON c.id = a.claim_id
		 WHERE a.id = ?`, argumentID.String(),
	)
	if err != nil {
		return model.Argument{}, fmt.Errorf("storage: get argument: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Argument{}, fmt.Errorf("storage: get argument: %w", err)
		}
		return model.Argument{}, graph.ErrNotFound
	}
	return scanLiteArgument(rows)
}

// UpdateArgumentQuality implements graph.Mutator.
func (l *Lite) UpdateArgumentQuality(ctx context.Context, argumentID uuid.UUID, u model.QualityUpdate) (model.Argument, error) {
	if err := model.ValidateQualityUpdate(u); err != nil {
		return model.Argument{}, err
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE arguments SET
		   evidence_quality = COALESCE(?, evidence_quality),
		   logical_validity = COALESCE(?, logical_validity),
		   importance = COALESCE(?, importance)
		 WHERE id = ?`,
		u.EvidenceQuality, u.LogicalValidity, u.Importance, argumentID.String(),
	)
	if err != nil {
		return model.Argument{}, fmt.Errorf("storage: update argument quality: %w", err)
	}
	a, err := l.GetArgument(ctx, argumentID)
	if err != nil {
		return model.Argument{}, err
	}
	l.mutated(a.ParentID)
	return a, nil
}

// DetachArgument implements graph.Mutator.
func (l *Lite) DetachArgument(ctx context.Context, argumentID uuid.UUID) (model.Argument, error) {
	a, err := l.GetArgument(ctx, argumentID)
	if err != nil {
		return model.Argument{}, err
	}
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM arguments WHERE id = ?`, argumentID.String(),
	); err != nil {
		return model.Argument{}, fmt.Errorf("storage: detach argument: %w", err)
	}
	l.mutated(a.ParentID)
	return a, nil
}

// ListEvidence implements graph.Store.
func (l *Lite) ListEvidence(ctx context.Context, claimID uuid.UUID) ([]model.Evidence, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, target_id, side, tier, credibility, verification, linkage,
		   statement, source_uri, embedding, submitted_at
		 FROM evidence WHERE target_id = ?
		 ORDER BY submitted_at, id`, claimID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list evidence: %w", err)
	}
	defer rows.Close()

	var items []model.Evidence
	for rows.Next() {
		e, err := scanLiteEvidence(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func scanLiteEvidence(rows *sql.Rows) (model.Evidence, error) {
	var (
		e           model.Evidence
		id, target  string
		emb         sql.NullString
		submittedAt int64
	)
	if err := rows.Scan(&id, &target, &e.Side, &e.Tier, &e.Credibility,
		&e.Verification, &e.Linkage, &e.Statement, &e.SourceURI, &emb, &submittedAt,
	); err != nil {
		return model.Evidence{}, fmt.Errorf("storage: scan evidence: %w", err)
	}

	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return model.Evidence{}, fmt.Errorf("storage: parse evidence id: %w", err)
	}
	if e.TargetID, err = uuid.Parse(target); err != nil {
		return model.Evidence{}, fmt.Errorf("storage: parse target id: %w", err)
	}
	e.Embedding = decodeEmbedding(emb)
	e.SubmittedAt = time.Unix(0, submittedAt).UTC()
	return e, nil
}

// AttachEvidence implements graph.Mutator.
func (l *Lite) AttachEvidence(ctx context.Context, e model.Evidence) error {
	if err := model.ValidateEvidence(e); err != nil {
		return err
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO evidence (id, target_id, side, tier, credibility, verification,
		 linkage, statement, source_uri, embedding, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.TargetID.String(), string(e.Side), string(e.Tier),
		e.Credibility, string(e.Verification), e.Linkage, e.Statement, e.SourceURI,
		encodeEmbedding(e.Embedding), e.SubmittedAt.UnixNano(),
	)
	if isLiteFKViolation(err) {
		return graph.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: attach evidence: %w", err)
	}
	l.mutated(e.TargetID)
	return nil
}

// SetEvidenceVerification implements graph.Mutator.
func (l *Lite) SetEvidenceVerification(ctx context.Context, evidenceID uuid.UUID, v model.Verification) (model.Evidence, error) {
	if !model.ValidVerification(v) {
		return model.Evidence{}, &model.ValidationError{Field: "verification", Message: "unknown verification status"}
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE evidence SET verification = ? WHERE id = ?`,
		string(v), evidenceID.String(),
	)
	if err != nil {
		return model.Evidence{}, fmt.Errorf("storage: set evidence verification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Evidence{}, graph.ErrNotFound
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, target_id, side, tier, credibility, verification, linkage,
		   statement, source_uri, embedding, submitted_at
		 FROM evidence WHERE id = ?`, evidenceID.String(),
	)
	if err != nil {
		return model.Evidence{}, fmt.Errorf("storage: get evidence: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return model.Evidence{}, graph.ErrNotFound
	}
	e, err := scanLiteEvidence(rows)
	if err != nil {
		return model.Evidence{}, err
	}
	l.mutated(e.TargetID)
	return e, nil
}

// GetLinkage implements graph.Store.
func (l *Lite) GetLinkage(ctx context.Context, fromID, toID uuid.UUID) (model.LinkageEdge, bool, error) {
	var (
		edge         model.LinkageEdge
		from, to     string
		direct       int
		debateID     sql.NullString
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT from_id, to_id, strength, direct, debate_claim_id
		 FROM linkages WHERE from_id = ? AND to_id = ?`,
		fromID.String(), toID.String(),
	).Scan(&from, &to, &edge.Strength, &direct, &debateID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LinkageEdge{}, false, nil
	}
	if err != nil {
		return model.LinkageEdge{}, false, fmt.Errorf("storage: get linkage: %w", err)
	}

	if edge.FromID, err = uuid.Parse(from); err != nil {
		return model.LinkageEdge{}, false, fmt.Errorf("storage: parse linkage from id: %w", err)
	}
	if edge.ToID, err = uuid.Parse(to); err != nil {
		return model.LinkageEdge{}, false, fmt.Errorf("storage: parse linkage to id: %w", err)
	}
	edge.Direct = direct != 0
	if edge.DebateClaimID, err = scanNullUUID(debateID); err != nil {
		return model.LinkageEdge{}, false, fmt.Errorf("storage: parse debate claim id: %w", err)
	}
	return edge, true, nil
}

// UpsertLinkage implements graph.Mutator.
func (l *Lite) UpsertLinkage(ctx context.Context, edge model.LinkageEdge) error {
	if err := model.ValidateLinkage("strength", edge.Strength); err != nil {
		return err
	}
	direct := 0
	if edge.Direct {
		direct = 1
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO linkages (from_id, to_id, strength, direct, debate_claim_id)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (from_id, to_id) DO UPDATE SET
		   strength = excluded.strength,
		   direct = excluded.direct,
		   debate_claim_id = excluded.debate_claim_id`,
		edge.FromID.String(), edge.ToID.String(), edge.Strength, direct,
		nullUUID(edge.DebateClaimID),
	)
	if isLiteFKViolation(err) {
		return graph.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: upsert linkage: %w", err)
	}
	l.mutated(edge.ToID)
	return nil
}

// ListDimensions implements graph.Store.
func (l *Lite) ListDimensions(ctx context.Context, claimID uuid.UUID) ([]model.Dimension, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, claim_id, kind, weight FROM dimensions
		 WHERE claim_id = ? ORDER BY kind`, claimID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list dimensions: %w", err)
	}
	defer rows.Close()

	var dims []model.Dimension
	for rows.Next() {
		var (
			d         model.Dimension
			id, claim string
		)
		if err := rows.Scan(&id, &claim, &d.Kind, &d.Weight); err != nil {
			return nil, fmt.Errorf("storage: scan dimension: %w", err)
		}
		if d.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("storage: parse dimension id: %w", err)
		}
		if d.ClaimID, err = uuid.Parse(claim); err != nil {
			return nil, fmt.Errorf("storage: parse dimension claim id: %w", err)
		}
		dims = append(dims, d)
	}
	return dims, rows.Err()
}

// CreateDimension implements graph.Mutator.
func (l *Lite) CreateDimension(ctx context.Context, d model.Dimension) error {
	if err := model.ValidateDimension(d); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO dimensions (id, claim_id, kind, weight) VALUES (?, ?, ?, ?)`,
		d.ID.String(), d.ClaimID.String(), string(d.Kind), d.Weight,
	)
	if isLiteFKViolation(err) {
		return graph.ErrNotFound
	}
	if isLiteUniqueViolation(err) {
		return &model.ValidationError{Field: "kind", Message: "dimension already declared for this claim"}
	}
	if err != nil {
		return fmt.Errorf("storage: create dimension: %w", err)
	}
	l.mutated(d.ClaimID)
	return nil
}
