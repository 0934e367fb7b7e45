package mcp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openargument/reasonrank/internal/engine"
	"github.com/openargument/reasonrank/internal/graph"
	"github.com/openargument/reasonrank/internal/model"
	"github.com/openargument/reasonrank/internal/similarity"
	"github.com/openargument/reasonrank/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *graph.Memory) {
	t.Helper()
	store := graph.NewMemory()
	eng, err := engine.New(engine.Params{Store: store, Strategy: similarity.NewLexical()})
	require.NoError(t, err)
	return New(eng, testutil.TestLogger()), store
}

func call(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	}
}

// toolText extracts the first TextContent text from a CallToolResult.
func toolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func seedClaim(t *testing.T, store *graph.Memory) uuid.UUID {
	t.Helper()
	c := model.Claim{
		ID: uuid.New(), Statement: "the dam should be removed",
		Status: model.ClaimStatusActive, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateClaim(t.Context(), c))
	return c.ID
}

func TestGetScoreTool(t *testing.T) {
	s, store := newTestServer(t)
	claimID := seedClaim(t, store)

	result, err := s.handleGetScore(t.Context(), call("get_score", map[string]any{
		"claim_id": claimID.String(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var score model.Score
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &score))
	assert.Equal(t, model.Neutral, score.Overall)
}

func TestGetScoreToolBadInput(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleGetScore(t.Context(), call("get_score", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleGetScore(t.Context(), call("get_score", map[string]any{
		"claim_id": "not-a-uuid",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleGetScore(t.Context(), call("get_score", map[string]any{
		"claim_id": uuid.New().String(),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "unknown claim is a tool error, not a transport error")
}

func TestGetBreakdownTool(t *testing.T) {
	s, store := newTestServer(t)
	claimID := seedClaim(t, store)

	content := model.Claim{
		ID: uuid.New(), Statement: "sediment flow would recover",
		Status: model.ClaimStatusActive, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateClaim(t.Context(), content))
	require.NoError(t, store.AttachArgument(t.Context(), model.Argument{
		ID: uuid.New(), ParentID: claimID, ClaimID: content.ID,
		Side: model.SideSupporting, EvidenceQuality: 90, LogicalValidity: 90, Importance: 90,
	}))

	result, err := s.handleGetBreakdown(t.Context(), call("get_breakdown", map[string]any{
		"claim_id": claimID.String(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var bd model.Breakdown
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &bd))
	assert.InDelta(t, 90.46, bd.Overall, 0.01)
	assert.Len(t, bd.Contributions, 1)
}

func TestRecalculateTool(t *testing.T) {
	s, store := newTestServer(t)
	claimID := seedClaim(t, store)

	result, err := s.handleRecalculate(t.Context(), call("recalculate", map[string]any{
		"claim_id": claimID.String(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	result, err = s.handleRecalculate(t.Context(), call("recalculate", map[string]any{
		"claim_id": claimID.String(),
		"mode":     "global",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	result, err = s.handleRecalculate(t.Context(), call("recalculate", map[string]any{
		"claim_id": claimID.String(),
		"mode":     "sideways",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
