package graph

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openargument/reasonrank/internal/model"
)

func newClaim(t *testing.T, m *Memory, statement string) model.Claim {
	t.Helper()
	c := model.Claim{ID: uuid.New(), Statement: statement, Status: model.ClaimStatusActive, CreatedAt: time.Now()}
	require.NoError(t, m.CreateClaim(t.Context(), c))
	return c
}

func TestMemoryClaimLifecycle(t *testing.T) {
	m := NewMemory()
	c := newClaim(t, m, "the policy reduced emissions")

	got, err := m.GetClaim(t.Context(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Statement, got.Statement)

	_, err = m.GetClaim(t.Context(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SetClaimStatus(t.Context(), c.ID, model.ClaimStatusArchived))
	got, err = m.GetClaim(t.Context(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusArchived, got.Status)
}

func TestMemoryReferentialIntegrity(t *testing.T) {
	m := NewMemory()
	parent := newClaim(t, m, "parent")
	content := newClaim(t, m, "sub-argument content")

	require.NoError(t, m.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: parent.ID, ClaimID: content.ID,
		Side: model.SideSupporting, EvidenceQuality: 50, LogicalValidity: 50, Importance: 50,
	}))

	// The content claim is referenced and must not be deletable.
	require.ErrorIs(t, m.DeleteClaim(t.Context(), content.ID), ErrReferenced)

	// The parent is not referenced by anyone.
	require.NoError(t, m.DeleteClaim(t.Context(), parent.ID))
}

func TestMemoryMutationHookFires(t *testing.T) {
	m := NewMemory()
	var notified []uuid.UUID
	m.OnMutate(func(id uuid.UUID) { notified = append(notified, id) })

	parent := newClaim(t, m, "parent")
	content := newClaim(t, m, "content")
	arg := model.Argument{
		ID: uuid.New(), ParentID: parent.ID, ClaimID: content.ID,
		Side: model.SideOpposing, EvidenceQuality: 60, LogicalValidity: 60, Importance: 60,
	}
	require.NoError(t, m.AttachArgument(t.Context(), arg))
	require.Equal(t, []uuid.UUID{parent.ID}, notified)

	imp := 90.0
	_, err := m.UpdateArgumentQuality(t.Context(), arg.ID, model.QualityUpdate{Importance: &imp})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, notified[len(notified)-1])

	require.NoError(t, m.AttachEvidence(t.Context(), model.Evidence{
		ID: uuid.New(), TargetID: content.ID, Side: model.SideSupporting,
		Tier: model.TierExpert, Credibility: 70,
		Verification: model.VerificationUnverified, Linkage: 1,
	}))
	assert.Equal(t, content.ID, notified[len(notified)-1])
}

func TestMemoryValidationRejected(t *testing.T) {
	m := NewMemory()
	parent := newClaim(t, m, "parent")
	content := newClaim(t, m, "content")

	err := m.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: parent.ID, ClaimID: content.ID,
		Side: model.SideSupporting, EvidenceQuality: 101, LogicalValidity: 50, Importance: 50,
	})
	require.ErrorIs(t, err, model.ErrValidation)

	args, lerr := m.ListArguments(t.Context(), parent.ID)
	require.NoError(t, lerr)
	assert.Empty(t, args, "rejected mutation must not be applied")
}

func TestMemoryListParents(t *testing.T) {
	m := NewMemory()
	rootA := newClaim(t, m, "root a")
	rootB := newClaim(t, m, "root b")
	shared := newClaim(t, m, "shared sub-argument")

	for _, parent := range []uuid.UUID{rootA.ID, rootB.ID} {
		require.NoError(t, m.AttachArgument(t.Context(), model.Argument{
			ID: uuid.New(), ParentID: parent, ClaimID: shared.ID,
			Side: model.SideSupporting, EvidenceQuality: 50, LogicalValidity: 50, Importance: 50,
		}))
	}

	parents, err := m.ListParents(t.Context(), shared.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{rootA.ID, rootB.ID}, parents)
}

func TestMemoryLinkageDebateParent(t *testing.T) {
	m := NewMemory()
	target := newClaim(t, m, "target")
	item := newClaim(t, m, "evidence item content")
	debate := newClaim(t, m, "is this evidence relevant")

	debateID := debate.ID
	require.NoError(t, m.UpsertLinkage(t.Context(), model.LinkageEdge{
		FromID: item.ID, ToID: target.ID, Strength: 1, Direct: true, DebateClaimID: &debateID,
	}))

	parents, err := m.ListParents(t.Context(), debate.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{target.ID}, parents, "linkage debate outcome feeds the edge's target claim")
}

func TestMemoryListClaimIDsActiveOnly(t *testing.T) {
	m := NewMemory()
	active := newClaim(t, m, "active")
	archived := newClaim(t, m, "archived")
	require.NoError(t, m.SetClaimStatus(t.Context(), archived.ID, model.ClaimStatusArchived))

	all, err := m.ListClaimIDs(t.Context(), false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeIDs, err := m.ListClaimIDs(t.Context(), true)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{active.ID}, activeIDs)
}

func TestMemoryDeleteClaimClearsDebateReference(t *testing.T) {
	m := NewMemory()
	target := newClaim(t, m, "target")
	item := newClaim(t, m, "evidence item content")
	debate := newClaim(t, m, "is this evidence relevant")

	debateID := debate.ID
	require.NoError(t, m.UpsertLinkage(t.Context(), model.LinkageEdge{
		FromID: item.ID, ToID: target.ID, Strength: 0.6, DebateClaimID: &debateID,
	}))

	// Nothing references the debate claim as argument content, so it is
	// deletable; the edge falls back to its recorded strength.
	require.NoError(t, m.DeleteClaim(t.Context(), debate.ID))

	edge, ok, err := m.GetLinkage(t.Context(), item.ID, target.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, edge.DebateClaimID)
	assert.Equal(t, 0.6, edge.Strength)
}
