package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
	"github.com/openargument/reasonrank/internal/storage"
	"github.com/openargument/reasonrank/internal/testutil"
)

// testDB is shared by all Postgres integration tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	if os.Getenv("REASONRANK_SKIP_DOCKER_TESTS") != "" {
		os.Exit(m.Run())
	}

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}

	code := m.Run()
	testDB.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func requireDB(t *testing.T) *storage.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("docker integration tests disabled")
	}
	return testDB
}

func pgClaim(t *testing.T, db *storage.DB, statement string) model.Claim {
	t.Helper()
	c := model.Claim{
		ID: uuid.New(), Statement: statement,
		Status: model.ClaimStatusActive, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateClaim(t.Context(), c))
	return c
}

func TestPostgresClaimRoundtrip(t *testing.T) {
	db := requireDB(t)
	c := model.Claim{
		ID: uuid.New(), Statement: "minimum wage increases reduce turnover",
		Category: "economics", Status: model.ClaimStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateClaim(t.Context(), c))

	got, err := db.GetClaim(t.Context(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Statement, got.Statement)
	assert.Equal(t, "economics", got.Category)

	_, err = db.GetClaim(t.Context(), uuid.New())
	require.ErrorIs(t, err, graph.ErrNotFound)
}

func TestPostgresArgumentDenormalization(t *testing.T) {
	db := requireDB(t)
	parent := pgClaim(t, db, "parent claim")
	content := pgClaim(t, db, "the content statement")

	require.NoError(t, db.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: parent.ID, ClaimID: content.ID,
		Side: model.SideSupporting, EvidenceQuality: 70, LogicalValidity: 80, Importance: 60,
	}))

	args, err := db.ListArguments(t.Context(), parent.ID)
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.Equal(t, content.Statement, args[0].Statement)
	assert.Equal(t, content.ID, args[0].ClaimID)
}

func TestPostgresReferentialIntegrity(t *testing.T) {
	db := requireDB(t)
	parent := pgClaim(t, db, "parent")
	content := pgClaim(t, db, "referenced content")

	require.NoError(t, db.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: parent.ID, ClaimID: content.ID,
		Side: model.SideOpposing, EvidenceQuality: 50, LogicalValidity: 50, Importance: 50,
	}))

	require.ErrorIs(t, db.DeleteClaim(t.Context(), content.ID), graph.ErrReferenced)
	// The parent cascades its own attachments away.
	require.NoError(t, db.DeleteClaim(t.Context(), parent.ID))
	require.NoError(t, db.DeleteClaim(t.Context(), content.ID))
}

func TestPostgresEvidenceAndLinkage(t *testing.T) {
	db := requireDB(t)
	target := pgClaim(t, db, "target")

	ev := model.Evidence{
		ID: uuid.New(), TargetID: target.ID, Side: model.SideSupporting,
		Tier: model.TierPeerReviewed, Credibility: 85,
		Verification: model.VerificationVerified, Linkage: 1,
		Statement: "published study", Embedding: []float32{0.25, 0.5},
	}
	require.NoError(t, db.AttachEvidence(t.Context(), ev))

	items, err := db.ListEvidence(t.Context(), target.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ev.Embedding, items[0].Embedding, "embedding survives the vector column")

	require.NoError(t, db.UpsertLinkage(t.Context(), model.LinkageEdge{
		FromID: ev.ID, ToID: target.ID, Strength: -0.5, Direct: true,
	}))
	edge, ok, err := db.GetLinkage(t.Context(), ev.ID, target.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, -0.5, edge.Strength, 1e-9)
}

func TestPostgresMutationHook(t *testing.T) {
	db := requireDB(t)
	var notified []uuid.UUID
	db.OnMutate(func(id uuid.UUID) { notified = append(notified, id) })
	defer db.OnMutate(nil)

	target := pgClaim(t, db, "hooked claim")
	require.NoError(t, db.AttachEvidence(t.Context(), model.Evidence{
		ID: uuid.New(), TargetID: target.ID, Side: model.SideSupporting,
		Tier: model.TierOpinion, Credibility: 40,
		Verification: model.VerificationUnverified, Linkage: 1,
	}))
	require.Contains(t, notified, target.ID)
}

func TestPostgresListParents(t *testing.T) {
	db := requireDB(t)
	root := pgClaim(t, db, "root")
	shared := pgClaim(t, db, "shared")
	debateTarget := pgClaim(t, db, "debate target")

	require.NoError(t, db.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: root.ID, ClaimID: shared.ID,
		Side: model.SideSupporting, EvidenceQuality: 50, LogicalValidity: 50, Importance: 50,
	}))
	sharedID := shared.ID
	require.NoError(t, db.UpsertLinkage(t.Context(), model.LinkageEdge{
		FromID: uuid.New(), ToID: debateTarget.ID, Direct: true, DebateClaimID: &sharedID,
	}))

	parents, err := db.ListParents(t.Context(), shared.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{root.ID, debateTarget.ID}, parents)
}
