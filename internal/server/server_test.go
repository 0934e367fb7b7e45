package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openargument/reasonrank/internal/auth"
	"github.com/openargument/reasonrank/internal/engine"
	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
	"github.com/openargument/reasonrank/internal/server"
	"github.com/openargument/reasonrank/internal/similarity"
	"github.com/openargument/reasonrank/internal/testutil"
)

type testEnv struct {
	srv    *server.Server
	store  *graph.Memory
	engine *engine.Engine

	adminToken  string
	editorToken string
	readerToken string
}

func newTestEnv(t *testing.T, opts ...func(*server.Config)) *testEnv {
	t.Helper()

	store := graph.NewMemory()
	eng, err := engine.New(engine.Params{Store: store, Strategy: similarity.NewLexical()})
	require.NoError(t, err)

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	keyring, err := auth.NewKeyring("admin-key", "editor-key", "reader-key")
	require.NoError(t, err)

	cfg := server.Config{
		Store:               store,
		Engine:              eng,
		JWTMgr:              jwtMgr,
		Keyring:             keyring,
		Logger:              testutil.TestLogger(),
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
		OpenAPISpec:         []byte("openapi: 3.0.3\n"),
	}
	for _, o := range opts {
		o(&cfg)
	}
	srv := server.New(cfg)

	env := &testEnv{srv: srv, store: store, engine: eng}
	env.adminToken = env.mintToken(t, "admin-key")
	env.editorToken = env.mintToken(t, "editor-key")
	env.readerToken = env.mintToken(t, "reader-key")
	return env
}

func (env *testEnv) mintToken(t *testing.T, apiKey string) string {
	t.Helper()
	body, _ := json.Marshal(model.AuthTokenRequest{APIKey: apiKey})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(body))
	env.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data model.AuthTokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.Token
}

// do runs an authenticated request and returns the recorder.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) createClaim(t *testing.T, statement string) uuid.UUID {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/v1/claims", env.editorToken,
		model.CreateClaimRequest{Statement: statement})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data model.Claim `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.ID
}

func TestAuthTokenRejectsBadKey(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{APIKey: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/claims/"+uuid.New().String()+"/score", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReaderCannotMutate(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/claims", env.readerToken,
		model.CreateClaimRequest{Statement: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestScoreEmptyClaim(t *testing.T) {
	env := newTestEnv(t)
	claimID := env.createClaim(t, "remote work improves productivity")

	rec := env.do(t, http.MethodGet, "/v1/claims/"+claimID.String()+"/score", env.readerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data model.Score `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.Neutral, resp.Data.Overall)
}

func TestScoreUnknownClaimIs404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/claims/"+uuid.New().String()+"/score", env.readerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedClaimIDIs400(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/claims/not-a-uuid/score", env.readerToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttachArgumentAndBreakdown(t *testing.T) {
	env := newTestEnv(t)
	claimID := env.createClaim(t, "the new policy is effective")

	rec := env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/arguments", env.editorToken,
		model.AttachArgumentRequest{
			Statement:       "adoption doubled within a year",
			Side:            model.SideSupporting,
			EvidenceQuality: 90, LogicalValidity: 90, Importance: 90,
		})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/claims/"+claimID.String()+"/breakdown", env.readerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data model.Breakdown `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 90.46, resp.Data.Overall, 0.01)
	require.Len(t, resp.Data.Contributions, 1)
	assert.Equal(t, model.ContributionArgument, resp.Data.Contributions[0].Kind)
}

func TestAttachArgumentValidationError(t *testing.T) {
	env := newTestEnv(t)
	claimID := env.createClaim(t, "claim")

	rec := env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/arguments", env.editorToken,
		model.AttachArgumentRequest{
			Statement: "s", Side: "sideways",
			EvidenceQuality: 50, LogicalValidity: 50, Importance: 50,
		})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestEvidenceLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	claimID := env.createClaim(t, "vaccines reduce transmission")

	linkage := 0.9
	rec := env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/evidence", env.editorToken,
		model.AttachEvidenceRequest{
			Side: model.SideSupporting, Tier: model.TierPeerReviewed,
			Credibility: 85, Verification: model.VerificationVerified,
			Linkage: &linkage, Statement: "cohort study",
		})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data model.Evidence `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodPatch,
		"/v1/evidence/"+created.Data.ID.String()+"/verification", env.editorToken,
		map[string]string{"verification": "debunked"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Debunked evidence still appears in the breakdown at zero weight.
	rec = env.do(t, http.MethodGet, "/v1/claims/"+claimID.String()+"/breakdown", env.readerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bd struct {
		Data model.Breakdown `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bd))
	require.Len(t, bd.Data.Contributions, 1)
	assert.Zero(t, bd.Data.Contributions[0].Value)
}

func TestQualityUpdateAndDetach(t *testing.T) {
	env := newTestEnv(t)
	claimID := env.createClaim(t, "parent")

	rec := env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/arguments", env.editorToken,
		model.AttachArgumentRequest{
			Statement: "content", Side: model.SideSupporting,
			EvidenceQuality: 60, LogicalValidity: 60, Importance: 60,
		})
	require.Equal(t, http.StatusCreated, rec.Code)
	var arg struct {
		Data model.Argument `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &arg))

	imp := 95.0
	rec = env.do(t, http.MethodPatch,
		"/v1/arguments/"+arg.Data.ID.String()+"/quality", env.editorToken,
		model.QualityUpdate{Importance: &imp})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated struct {
		Data model.Argument `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 95.0, updated.Data.Importance)
	assert.Equal(t, 60.0, updated.Data.EvidenceQuality)

	rec = env.do(t, http.MethodDelete, "/v1/arguments/"+arg.Data.ID.String(), env.editorToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/arguments/"+arg.Data.ID.String(), env.editorToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteReferencedClaimIsConflict(t *testing.T) {
	env := newTestEnv(t)
	parentID := env.createClaim(t, "parent")
	contentID := env.createClaim(t, "shared content")

	rec := env.do(t, http.MethodPost, "/v1/claims/"+parentID.String()+"/arguments", env.editorToken,
		model.AttachArgumentRequest{
			ClaimID: &contentID, Side: model.SideSupporting,
			EvidenceQuality: 50, LogicalValidity: 50, Importance: 50,
		})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/v1/claims/"+contentID.String(), env.editorToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFLICT")
}

func TestRecalculateModes(t *testing.T) {
	env := newTestEnv(t)
	claimID := env.createClaim(t, "claim")

	rec := env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/recalculate", env.editorToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/recalculate", env.editorToken,
		model.RecalculateRequest{Mode: model.RecalcGlobal})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/recalculate", env.editorToken,
		map[string]string{"mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/recalculate", env.readerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvalidateReturns202(t *testing.T) {
	env := newTestEnv(t)
	claimID := env.createClaim(t, "claim")

	rec := env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/invalidate", env.editorToken, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), claimID.String())
}

func TestDimensionAndLinkageRoutes(t *testing.T) {
	env := newTestEnv(t)
	claimID := env.createClaim(t, "multi-dimensional claim")
	debateID := env.createClaim(t, "relevance debate")

	rec := env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/dimensions", env.editorToken,
		map[string]any{"kind": "validity", "weight": 2.0})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/dimensions", env.editorToken,
		map[string]any{"kind": "validity", "weight": 0.0})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "zero weight rejected")

	rec = env.do(t, http.MethodPut, "/v1/linkages", env.editorToken, model.LinkageEdge{
		FromID: uuid.New(), ToID: claimID, Strength: 0.5, Direct: true, DebateClaimID: &debateID,
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/v1/linkages", env.editorToken, model.LinkageEdge{ToID: claimID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing from_id rejected")
}

func TestClaimStatusRoute(t *testing.T) {
	env := newTestEnv(t)
	claimID := env.createClaim(t, "claim")

	rec := env.do(t, http.MethodPatch, "/v1/claims/"+claimID.String()+"/status", env.editorToken,
		map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPatch, "/v1/claims/"+claimID.String()+"/status", env.editorToken,
		map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutationMarksScoreStale(t *testing.T) {
	env := newTestEnv(t)
	// Wire the invalidation hook the way the application does.
	env.store.OnMutate(func(id uuid.UUID) {
		_, _ = env.engine.Invalidate(t.Context(), id)
	})

	claimID := env.createClaim(t, "claim under edit")

	rec := env.do(t, http.MethodGet, "/v1/claims/"+claimID.String()+"/score", env.readerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/arguments", env.editorToken,
		model.AttachArgumentRequest{
			Statement: "new argument", Side: model.SideSupporting,
			EvidenceQuality: 80, LogicalValidity: 80, Importance: 80,
		})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/claims/"+claimID.String()+"/score", env.readerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data model.Score `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Stale, "cached score is served stale until recompute")
	assert.Equal(t, model.Neutral, resp.Data.Overall)
}

func TestHealthAndOpenAPI(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = env.do(t, http.MethodGet, "/openapi.yaml", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
}

func TestSecurityAndRequestIDHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}

func TestRequestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)

	big := bytes.Repeat([]byte("a"), 2<<20)
	req := httptest.NewRequest(http.MethodPost, "/v1/claims",
		bytes.NewReader([]byte(fmt.Sprintf(`{"statement":%q}`, big))))
	req.Header.Set("Authorization", "Bearer "+env.editorToken)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// recordingIndex captures every candidate-index upsert.
type recordingIndex struct {
	upserted []similarity.Item
}

func (r *recordingIndex) Upsert(_ context.Context, items []similarity.Item) error {
	r.upserted = append(r.upserted, items...)
	return nil
}

func (r *recordingIndex) Neighbors(context.Context, similarity.Item, int) ([]similarity.Neighbor, error) {
	return nil, nil
}

func (r *recordingIndex) Healthy(context.Context) error { return nil }

// fixedEmbedder returns the same vector for every statement.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = f.Embed(context.Background(), texts[i])
	}
	return out, nil
}

func (fixedEmbedder) Dimensions() int { return 3 }

func TestMutationsPopulateCandidateIndex(t *testing.T) {
	idx := &recordingIndex{}
	env := newTestEnv(t, func(cfg *server.Config) {
		cfg.Embedder = fixedEmbedder{}
		cfg.Index = idx
	})

	indexed := func(id uuid.UUID) bool {
		for _, it := range idx.upserted {
			if it.ID == id && len(it.Embedding) > 0 {
				return true
			}
		}
		return false
	}

	claimID := env.createClaim(t, "congestion pricing reduces traffic")
	assert.True(t, indexed(claimID), "created claim is indexed")

	rec := env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/arguments", env.editorToken,
		model.AttachArgumentRequest{
			Statement:       "trial programs cut rush-hour volume",
			Side:            model.SideSupporting,
			EvidenceQuality: 70, LogicalValidity: 70, Importance: 70,
		})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var argResp struct {
		Data model.Argument `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &argResp))
	assert.True(t, indexed(argResp.Data.ClaimID), "argument content claim is indexed")

	rec = env.do(t, http.MethodPost, "/v1/claims/"+claimID.String()+"/evidence", env.editorToken,
		model.AttachEvidenceRequest{
			Statement:   "before/after traffic counts",
			Side:        model.SideSupporting,
			Tier:        model.TierJournalism,
			Credibility: 80,
		})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var evResp struct {
		Data model.Evidence `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evResp))
	assert.True(t, indexed(evResp.Data.ID), "evidence is indexed")
}
