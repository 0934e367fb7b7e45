package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openargument/reasonrank/internal/engine"
	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
	"github.com/openargument/reasonrank/internal/similarity"
	"github.com/openargument/reasonrank/internal/storage"
	"github.com/openargument/reasonrank/internal/testutil"
)

func openLite(t *testing.T) *storage.Lite {
	t.Helper()
	l, err := storage.OpenLite(filepath.Join(t.TempDir(), "test.db"), testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func liteClaim(t *testing.T, l *storage.Lite, statement string) model.Claim {
	t.Helper()
	c := model.Claim{
		ID: uuid.New(), Statement: statement,
		Status: model.ClaimStatusActive, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, l.CreateClaim(t.Context(), c))
	return c
}

func TestLiteClaimRoundtrip(t *testing.T) {
	l := openLite(t)
	c := model.Claim{
		ID: uuid.New(), Statement: "carbon pricing reduces emissions",
		Category: "policy", Status: model.ClaimStatusActive,
		Embedding: []float32{0.1, 0.2, 0.3},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, l.CreateClaim(t.Context(), c))

	got, err := l.GetClaim(t.Context(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Statement, got.Statement)
	assert.Equal(t, c.Category, got.Category)
	assert.Equal(t, c.Embedding, got.Embedding)
	assert.Equal(t, model.ClaimStatusActive, got.Status)

	_, err = l.GetClaim(t.Context(), uuid.New())
	require.ErrorIs(t, err, graph.ErrNotFound)
}

func TestLiteClaimStatusAndListing(t *testing.T) {
	l := openLite(t)
	active := liteClaim(t, l, "active")
	archived := liteClaim(t, l, "archived")
	require.NoError(t, l.SetClaimStatus(t.Context(), archived.ID, model.ClaimStatusArchived))
	require.ErrorIs(t, l.SetClaimStatus(t.Context(), uuid.New(), model.ClaimStatusArchived), graph.ErrNotFound)

	all, err := l.ListClaimIDs(t.Context(), false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeIDs, err := l.ListClaimIDs(t.Context(), true)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{active.ID}, activeIDs)
}

func TestLiteArgumentLifecycle(t *testing.T) {
	l := openLite(t)
	var notified []uuid.UUID
	l.OnMutate(func(id uuid.UUID) { notified = append(notified, id) })

	parent := liteClaim(t, l, "parent claim")
	content := liteClaim(t, l, "content claim")

	a := model.Argument{
		ID: uuid.New(), ParentID: parent.ID, ClaimID: content.ID,
		Side: model.SideSupporting, EvidenceQuality: 75, LogicalValidity: 80, Importance: 60,
	}
	require.NoError(t, l.AttachArgument(t.Context(), a))
	assert.Equal(t, []uuid.UUID{parent.ID}, notified)

	args, err := l.ListArguments(t.Context(), parent.ID)
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.Equal(t, content.Statement, args[0].Statement, "content statement is denormalized")
	assert.Equal(t, 75.0, args[0].EvidenceQuality)

	imp := 90.0
	updated, err := l.UpdateArgumentQuality(t.Context(), a.ID, model.QualityUpdate{Importance: &imp})
	require.NoError(t, err)
	assert.Equal(t, 90.0, updated.Importance)
	assert.Equal(t, 75.0, updated.EvidenceQuality, "unset fields keep their values")

	// Deleting the content claim is blocked while the argument lives.
	require.ErrorIs(t, l.DeleteClaim(t.Context(), content.ID), graph.ErrReferenced)

	detached, err := l.DetachArgument(t.Context(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, detached.ID)
	require.NoError(t, l.DeleteClaim(t.Context(), content.ID))

	_, err = l.GetArgument(t.Context(), a.ID)
	require.ErrorIs(t, err, graph.ErrNotFound)
}

func TestLiteArgumentValidationRejected(t *testing.T) {
	l := openLite(t)
	parent := liteClaim(t, l, "parent")
	content := liteClaim(t, l, "content")

	err := l.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: parent.ID, ClaimID: content.ID,
		Side: "sideways", EvidenceQuality: 50, LogicalValidity: 50, Importance: 50,
	})
	require.ErrorIs(t, err, model.ErrValidation)

	err = l.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: parent.ID, ClaimID: uuid.New(),
		Side: model.SideSupporting, EvidenceQuality: 50, LogicalValidity: 50, Importance: 50,
	})
	require.ErrorIs(t, err, graph.ErrNotFound, "missing content claim is a not-found, not a validation error")
}

func TestLiteEvidenceLifecycle(t *testing.T) {
	l := openLite(t)
	target := liteClaim(t, l, "target")

	e := model.Evidence{
		ID: uuid.New(), TargetID: target.ID, Side: model.SideSupporting,
		Tier: model.TierExpert, Credibility: 70,
		Verification: model.VerificationUnverified, Linkage: 0.9,
		Statement: "expert testimony", SourceURI: "https://example.org/report",
		Embedding: []float32{0.5, 0.5},
	}
	require.NoError(t, l.AttachEvidence(t.Context(), e))

	items, err := l.ListEvidence(t.Context(), target.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, e.Statement, items[0].Statement)
	assert.Equal(t, e.Embedding, items[0].Embedding)
	assert.InDelta(t, 0.9, items[0].Linkage, 1e-9)

	updated, err := l.SetEvidenceVerification(t.Context(), e.ID, model.VerificationDebunked)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationDebunked, updated.Verification)

	_, err = l.SetEvidenceVerification(t.Context(), uuid.New(), model.VerificationVerified)
	require.ErrorIs(t, err, graph.ErrNotFound)
}

func TestLiteLinkageAndDimensions(t *testing.T) {
	l := openLite(t)
	target := liteClaim(t, l, "target")
	debate := liteClaim(t, l, "relevance debate")
	itemID := uuid.New()

	debateID := debate.ID
	require.NoError(t, l.UpsertLinkage(t.Context(), model.LinkageEdge{
		FromID: itemID, ToID: target.ID, Strength: 0.6, Direct: true, DebateClaimID: &debateID,
	}))

	edge, ok, err := l.GetLinkage(t.Context(), itemID, target.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.6, edge.Strength, 1e-9)
	assert.True(t, edge.Direct)
	require.NotNil(t, edge.DebateClaimID)
	assert.Equal(t, debate.ID, *edge.DebateClaimID)

	// Upsert replaces in place.
	require.NoError(t, l.UpsertLinkage(t.Context(), model.LinkageEdge{
		FromID: itemID, ToID: target.ID, Strength: -0.4, Direct: false,
	}))
	edge, ok, err = l.GetLinkage(t.Context(), itemID, target.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, -0.4, edge.Strength, 1e-9)
	assert.Nil(t, edge.DebateClaimID)

	_, ok, err = l.GetLinkage(t.Context(), uuid.New(), target.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	parents, err := l.ListParents(t.Context(), debate.ID)
	require.NoError(t, err)
	assert.Empty(t, parents, "replaced edge no longer depends on the debate")

	d := model.Dimension{ID: uuid.New(), ClaimID: target.ID, Kind: model.DimensionValidity, Weight: 2}
	require.NoError(t, l.CreateDimension(t.Context(), d))
	require.ErrorIs(t, l.CreateDimension(t.Context(), model.Dimension{
		ID: uuid.New(), ClaimID: target.ID, Kind: model.DimensionValidity, Weight: 1,
	}), model.ErrValidation, "duplicate kind per claim is rejected")

	dims, err := l.ListDimensions(t.Context(), target.ID)
	require.NoError(t, err)
	require.Len(t, dims, 1)
	assert.Equal(t, model.DimensionValidity, dims[0].Kind)
}

func TestLiteListParents(t *testing.T) {
	l := openLite(t)
	rootA := liteClaim(t, l, "root a")
	rootB := liteClaim(t, l, "root b")
	shared := liteClaim(t, l, "shared content")

	for _, parent := range []uuid.UUID{rootA.ID, rootB.ID} {
		require.NoError(t, l.AttachArgument(t.Context(), model.Argument{
			ID: uuid.New(), ParentID: parent, ClaimID: shared.ID,
			Side: model.SideSupporting, EvidenceQuality: 50, LogicalValidity: 50, Importance: 50,
		}))
	}

	parents, err := l.ListParents(t.Context(), shared.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{rootA.ID, rootB.ID}, parents)
}

// The engine runs unchanged against the SQLite store; local mode is a
// first-class deployment, not a mock.
func TestLiteBacksEngine(t *testing.T) {
	l := openLite(t)
	claim := liteClaim(t, l, "the policy works")
	content := liteClaim(t, l, "adoption rates doubled")
	require.NoError(t, l.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: claim.ID, ClaimID: content.ID,
		Side: model.SideSupporting, EvidenceQuality: 90, LogicalValidity: 90, Importance: 90,
	}))

	e, err := engine.New(engine.Params{Store: l, Strategy: similarity.NewLexical()})
	require.NoError(t, err)

	s, err := e.Score(t.Context(), claim.ID)
	require.NoError(t, err)
	assert.InDelta(t, 90.46, s.Overall, 0.01)
}
