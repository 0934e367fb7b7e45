package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openargument/reasonrank/internal/auth"
	"github.com/openargument/reasonrank/internal/engine"
	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
	"github.com/openargument/reasonrank/internal/service/embedding"
	"github.com/openargument/reasonrank/internal/similarity"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               Store
	engine              *engine.Engine
	jwtMgr              *auth.JWTManager
	keyring             *auth.Keyring
	embedder            embedding.Provider
	index               similarity.CandidateIndex
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Embedder, Index, OpenAPISpec.
type HandlersDeps struct {
	Store               Store
	Engine              *engine.Engine
	JWTMgr              *auth.JWTManager
	Keyring             *auth.Keyring
	Embedder            embedding.Provider
	Index               similarity.CandidateIndex
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:               d.Store,
		engine:              d.Engine,
		jwtMgr:              d.JWTMgr,
		keyring:             d.Keyring,
		embedder:            d.Embedder,
		index:               d.Index,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleAuthToken handles POST /auth/token. Exchanges a bootstrap API
// key for a JWT carrying the key's role.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	role, ok := h.keyring.Resolve(req.APIKey)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(role)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Role:      string(role),
	})
}

// HandleScore handles GET /v1/claims/{claim_id}/score. Serves the cached
// score, stale or not; a cache miss computes synchronously.
func (h *Handlers) HandleScore(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathUUID(r, "claim_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	score, err := h.engine.Score(r.Context(), claimID)
	if err != nil {
		h.writeStoreError(w, r, "score claim", err)
		return
	}
	writeJSON(w, r, http.StatusOK, score)
}

// HandleBreakdown handles GET /v1/claims/{claim_id}/breakdown. Always
// computes fresh so the contribution table reconciles with the score it
// reports.
func (h *Handlers) HandleBreakdown(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathUUID(r, "claim_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	bd, err := h.engine.Breakdown(r.Context(), claimID)
	if err != nil {
		h.writeStoreError(w, r, "breakdown claim", err)
		return
	}
	writeJSON(w, r, http.StatusOK, bd)
}

// HandleRecalculate handles POST /v1/claims/{claim_id}/recalculate.
// The body is optional; an empty body means local mode.
func (h *Handlers) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathUUID(r, "claim_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	req := model.RecalculateRequest{Mode: model.RecalcLocal}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil && !errors.Is(err, io.EOF) {
		handleDecodeError(w, r, err)
		return
	}
	if req.Mode == "" {
		req.Mode = model.RecalcLocal
	}
	if !model.ValidRecalcMode(req.Mode) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("mode must be %q or %q", model.RecalcLocal, model.RecalcGlobal))
		return
	}

	score, err := h.engine.Recalculate(r.Context(), claimID, req.Mode)
	if err != nil {
		h.writeStoreError(w, r, "recalculate claim", err)
		return
	}
	writeJSON(w, r, http.StatusOK, score)
}

// HandleInvalidate handles POST /v1/claims/{claim_id}/invalidate.
// Marks the claim and its ancestors stale and returns 202; recomputation
// happens in the background.
func (h *Handlers) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathUUID(r, "claim_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	affected, err := h.engine.Invalidate(r.Context(), claimID)
	if err != nil {
		h.writeStoreError(w, r, "invalidate claim", err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]any{
		"claim_id": claimID,
		"affected": affected,
	})
}

// HandleCreateClaim handles POST /v1/claims.
func (h *Handlers) HandleCreateClaim(w http.ResponseWriter, r *http.Request) {
	var req model.CreateClaimRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	claim, err := h.newClaim(r, req.Statement, req.Category)
	if err != nil {
		h.writeStoreError(w, r, "create claim", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, claim)
}

// HandleSetClaimStatus handles PATCH /v1/claims/{claim_id}/status.
func (h *Handlers) HandleSetClaimStatus(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathUUID(r, "claim_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req struct {
		Status model.ClaimStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if !model.ValidClaimStatus(req.Status) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	if err := h.store.SetClaimStatus(r.Context(), claimID, req.Status); err != nil {
		h.writeStoreError(w, r, "set claim status", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"claim_id": claimID, "status": req.Status})
}

// HandleDeleteClaim handles DELETE /v1/claims/{claim_id}. Deleting a
// claim still referenced as a sub-argument is a conflict.
func (h *Handlers) HandleDeleteClaim(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathUUID(r, "claim_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.store.DeleteClaim(r.Context(), claimID); err != nil {
		h.writeStoreError(w, r, "delete claim", err)
		return
	}
	h.engine.Cache().Drop(claimID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleAttachArgument handles POST /v1/claims/{claim_id}/arguments.
// The argument's content is either an existing claim (claim_id in the
// body) or a new claim created from the statement.
func (h *Handlers) HandleAttachArgument(w http.ResponseWriter, r *http.Request) {
	parentID, err := pathUUID(r, "claim_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.AttachArgumentRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	contentID := uuid.Nil
	if req.ClaimID != nil {
		contentID = *req.ClaimID
	} else {
		content, err := h.newClaim(r, req.Statement, "")
		if err != nil {
			h.writeStoreError(w, r, "create content claim", err)
			return
		}
		contentID = content.ID
	}

	a := model.Argument{
		ID:              uuid.New(),
		ParentID:        parentID,
		ClaimID:         contentID,
		Side:            req.Side,
		EvidenceQuality: req.EvidenceQuality,
		LogicalValidity: req.LogicalValidity,
		Importance:      req.Importance,
		DimensionID:     req.DimensionID,
		SubmittedAt:     time.Now().UTC(),
	}
	if err := h.store.AttachArgument(r.Context(), a); err != nil {
		h.writeStoreError(w, r, "attach argument", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, a)
}

// HandleAttachArgumentEvidence handles
// POST /v1/arguments/{argument_id}/evidence. Evidence filed against an
// argument lands on the argument's content claim.
func (h *Handlers) HandleAttachArgumentEvidence(w http.ResponseWriter, r *http.Request) {
	argumentID, err := pathUUID(r, "argument_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	arg, err := h.store.GetArgument(r.Context(), argumentID)
	if err != nil {
		h.writeStoreError(w, r, "get argument", err)
		return
	}
	h.attachEvidence(w, r, arg.ClaimID)
}

// HandleAttachClaimEvidence handles POST /v1/claims/{claim_id}/evidence.
func (h *Handlers) HandleAttachClaimEvidence(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathUUID(r, "claim_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	h.attachEvidence(w, r, claimID)
}

func (h *Handlers) attachEvidence(w http.ResponseWriter, r *http.Request, targetID uuid.UUID) {
	var req model.AttachEvidenceRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	e := model.Evidence{
		ID:           uuid.New(),
		TargetID:     targetID,
		Side:         req.Side,
		Tier:         req.Tier,
		Credibility:  req.Credibility,
		Verification: req.Verification,
		Linkage:      1.0,
		Statement:    req.Statement,
		SourceURI:    req.SourceURI,
		SubmittedAt:  time.Now().UTC(),
	}
	if e.Verification == "" {
		e.Verification = model.VerificationUnverified
	}
	if req.Linkage != nil {
		e.Linkage = *req.Linkage
	}
	e.Embedding = h.embedStatement(r, e.Statement)

	if err := h.store.AttachEvidence(r.Context(), e); err != nil {
		h.writeStoreError(w, r, "attach evidence", err)
		return
	}
	h.indexStatement(r, similarity.Item{ID: e.ID, Text: e.Statement, Embedding: e.Embedding})
	writeJSON(w, r, http.StatusCreated, e)
}

// HandleUpdateQuality handles PATCH /v1/arguments/{argument_id}/quality.
func (h *Handlers) HandleUpdateQuality(w http.ResponseWriter, r *http.Request) {
	argumentID, err := pathUUID(r, "argument_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var u model.QualityUpdate
	if err := decodeJSON(w, r, &u, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateQualityUpdate(u); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	updated, err := h.store.UpdateArgumentQuality(r.Context(), argumentID, u)
	if err != nil {
		h.writeStoreError(w, r, "update argument quality", err)
		return
	}
	writeJSON(w, r, http.StatusOK, updated)
}

// HandleDetachArgument handles DELETE /v1/arguments/{argument_id}.
func (h *Handlers) HandleDetachArgument(w http.ResponseWriter, r *http.Request) {
	argumentID, err := pathUUID(r, "argument_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	detached, err := h.store.DetachArgument(r.Context(), argumentID)
	if err != nil {
		h.writeStoreError(w, r, "detach argument", err)
		return
	}
	writeJSON(w, r, http.StatusOK, detached)
}

// HandleSetVerification handles
// PATCH /v1/evidence/{evidence_id}/verification.
func (h *Handlers) HandleSetVerification(w http.ResponseWriter, r *http.Request) {
	evidenceID, err := pathUUID(r, "evidence_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req struct {
		Verification model.Verification `json:"verification"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if !model.ValidVerification(req.Verification) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("unknown verification status %q", req.Verification))
		return
	}

	updated, err := h.store.SetEvidenceVerification(r.Context(), evidenceID, req.Verification)
	if err != nil {
		h.writeStoreError(w, r, "set evidence verification", err)
		return
	}
	writeJSON(w, r, http.StatusOK, updated)
}

// HandleCreateDimension handles POST /v1/claims/{claim_id}/dimensions.
func (h *Handlers) HandleCreateDimension(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathUUID(r, "claim_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req struct {
		Kind   model.DimensionKind `json:"kind"`
		Weight float64             `json:"weight"`
	}
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	d := model.Dimension{ID: uuid.New(), ClaimID: claimID, Kind: req.Kind, Weight: req.Weight}
	if err := model.ValidateDimension(d); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.store.CreateDimension(r.Context(), d); err != nil {
		h.writeStoreError(w, r, "create dimension", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, d)
}

// HandleUpsertLinkage handles PUT /v1/linkages.
func (h *Handlers) HandleUpsertLinkage(w http.ResponseWriter, r *http.Request) {
	var edge model.LinkageEdge
	if err := decodeJSON(w, r, &edge, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if edge.FromID == uuid.Nil || edge.ToID == uuid.Nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "from_id and to_id are required")
		return
	}

	if err := h.store.UpsertLinkage(r.Context(), edge); err != nil {
		h.writeStoreError(w, r, "upsert linkage", err)
		return
	}
	writeJSON(w, r, http.StatusOK, edge)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:    status,
		Version:   h.version,
		UptimeSec: int64(time.Since(h.startedAt).Seconds()),
		Database:  dbStatus,
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// --- shared helpers ---

// newClaim creates and persists a claim with a best-effort embedding.
func (h *Handlers) newClaim(r *http.Request, statement, category string) (model.Claim, error) {
	c := model.Claim{
		ID:        uuid.New(),
		Statement: statement,
		Category:  category,
		Status:    model.ClaimStatusActive,
		Embedding: h.embedStatement(r, statement),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateClaim(r.Context(), c); err != nil {
		return model.Claim{}, err
	}
	h.indexStatement(r, similarity.Item{ID: c.ID, Text: c.Statement, Embedding: c.Embedding})
	return c, nil
}

// embedStatement computes an embedding for statement text. Failure
// degrades similarity to lexical overlap rather than failing the
// mutation.
func (h *Handlers) embedStatement(r *http.Request, statement string) []float32 {
	if h.embedder == nil || statement == "" {
		return nil
	}
	vec, err := h.embedder.Embed(r.Context(), statement)
	if err != nil {
		h.logger.Warn("embedding failed, statement stored without vector", "error", err)
		return nil
	}
	return vec
}

// indexStatement feeds a freshly embedded statement into the candidate
// index so large sibling groups can be narrowed later. Best-effort: an
// index failure costs the uniqueness resolver its shortcut, not the
// mutation.
func (h *Handlers) indexStatement(r *http.Request, item similarity.Item) {
	if h.index == nil || len(item.Embedding) == 0 {
		return
	}
	if err := h.index.Upsert(r.Context(), []similarity.Item{item}); err != nil {
		h.logger.Warn("candidate index upsert failed", "item_id", item.ID, "error", err)
	}
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// writeStoreError maps storage and engine errors onto HTTP statuses.
func (h *Handlers) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "claim or item not found")
	case errors.Is(err, graph.ErrReferenced):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict,
			"claim is referenced by other claims and cannot be deleted")
	case errors.Is(err, model.ErrValidation):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	default:
		h.writeInternalError(w, r, "failed to "+op, err)
	}
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := r.PathValue(key)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%s is required", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return id, nil
}
