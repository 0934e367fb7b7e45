package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openargument/reasonrank/internal/config"
	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
)

func TestPropagateEmptyGraph(t *testing.T) {
	e := newTestEngine(t, graph.NewMemory())
	scores, stats, err := e.Propagate(t.Context())
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.True(t, stats.Converged)
}

func TestPropagateAgreesWithComposerOnTrees(t *testing.T) {
	m := graph.NewMemory()
	root := mustClaim(t, m, "root")
	mustArg(t, m, root, model.SideSupporting, 80, "strong support")
	mustArg(t, m, root, model.SideOpposing, 30, "weak objection")
	e := newTestEngine(t, m)

	local, err := e.Recalculate(t.Context(), root, model.RecalcLocal)
	require.NoError(t, err)

	scores, stats, err := e.Propagate(t.Context())
	require.NoError(t, err)
	require.True(t, stats.Converged)
	// Depth-one tree: neither mode discounts anything, so the fixed
	// point lands on the composed score.
	assert.InDelta(t, local.Overall, scores[root].Overall, 0.01)
}

func TestPropagateAgreesOnDeepTreeWithoutDecay(t *testing.T) {
	m := graph.NewMemory()
	root := mustClaim(t, m, "root")
	arg := mustArg(t, m, root, model.SideSupporting, 70, "level one")
	mid := mustArg(t, m, arg.ClaimID, model.SideSupporting, 60, "level two")
	mustArg(t, m, mid.ClaimID, model.SideOpposing, 50, "level three rebuttal")

	e := newTestEngine(t, m, func(p *Params) {
		p.Config = config.DefaultEngine()
		p.Config.DepthDecay = 0
	})

	local, err := e.Recalculate(t.Context(), root, model.RecalcLocal)
	require.NoError(t, err)

	scores, stats, err := e.Propagate(t.Context())
	require.NoError(t, err)
	require.True(t, stats.Converged)
	assert.InDelta(t, local.Overall, scores[root].Overall, 0.01,
		"with depth decay off the fixed point matches the recursive composition")
}

func TestPropagateConvergesOnCycle(t *testing.T) {
	m := graph.NewMemory()
	a := mustClaim(t, m, "a")
	b := mustClaim(t, m, "b")
	require.NoError(t, m.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: a, ClaimID: b, Side: model.SideSupporting,
		EvidenceQuality: 80, LogicalValidity: 80, Importance: 80,
	}))
	require.NoError(t, m.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: b, ClaimID: a, Side: model.SideSupporting,
		EvidenceQuality: 80, LogicalValidity: 80, Importance: 80,
	}))
	e := newTestEngine(t, m)

	scores, stats, err := e.Propagate(t.Context())
	require.NoError(t, err)
	assert.True(t, stats.Converged, "damping settles mutual support into a fixed point")
	for _, s := range scores {
		assert.Greater(t, s.Overall, model.Neutral)
		assert.Less(t, s.Overall, model.ScoreMax)
	}
	// Symmetric cycle, symmetric fixed point.
	assert.InDelta(t, scores[a].Overall, scores[b].Overall, 0.01)
}

func TestPropagateResolvesLinkageDebateDynamically(t *testing.T) {
	m := graph.NewMemory()
	target := mustClaim(t, m, "target")
	debate := mustClaim(t, m, "relevance debate")
	mustArg(t, m, debate, model.SideOpposing, 90, "not actually relevant")

	ev := uuid.New()
	require.NoError(t, m.AttachEvidence(t.Context(), model.Evidence{
		ID: ev, TargetID: target, Side: model.SideSupporting,
		Tier: model.TierPeerReviewed, Credibility: 80,
		Verification: model.VerificationVerified, Linkage: 1,
		Statement: "contested source",
	}))
	debateID := debate
	require.NoError(t, m.UpsertLinkage(t.Context(), model.LinkageEdge{
		FromID: ev, ToID: target, Direct: true, DebateClaimID: &debateID,
	}))
	e := newTestEngine(t, m)

	scores, stats, err := e.Propagate(t.Context())
	require.NoError(t, err)
	require.True(t, stats.Converged)
	assert.Less(t, scores[debate].Overall, model.Neutral)
	assert.Less(t, scores[target].Overall, model.Neutral,
		"losing the relevance debate flips the evidence against its target")
}

func TestRecalculateGlobalPublishesAllScores(t *testing.T) {
	m := graph.NewMemory()
	root := mustClaim(t, m, "root")
	arg := mustArg(t, m, root, model.SideSupporting, 75, "a point")
	e := newTestEngine(t, m)

	s, err := e.Recalculate(t.Context(), root, model.RecalcGlobal)
	require.NoError(t, err)
	assert.Equal(t, root, s.ClaimID)
	assert.Greater(t, s.Overall, model.Neutral)

	_, ok := e.Cache().Get(arg.ClaimID)
	assert.True(t, ok, "the global pass publishes every claim's score")
}

func TestRecalculateGlobalUnknownClaim(t *testing.T) {
	e := newTestEngine(t, graph.NewMemory())
	_, err := e.Recalculate(t.Context(), uuid.New(), model.RecalcGlobal)
	require.ErrorIs(t, err, graph.ErrNotFound)
}

func TestPropagateSkipsNonActiveClaims(t *testing.T) {
	m := graph.NewMemory()
	active := mustClaim(t, m, "active claim")
	retired := mustClaim(t, m, "retired claim")
	mustArg(t, m, active, model.SideSupporting, 70, "point for the active claim")
	mustArg(t, m, retired, model.SideSupporting, 70, "point for the retired claim")
	require.NoError(t, m.SetClaimStatus(t.Context(), retired, model.ClaimStatusArchived))
	e := newTestEngine(t, m)

	scores, stats, err := e.Propagate(t.Context())
	require.NoError(t, err)
	require.True(t, stats.Converged)

	assert.Contains(t, scores, active)
	assert.NotContains(t, scores, retired, "archived claims keep their cached score")
}
