// Package mcp exposes the scoring engine through the Model Context
// Protocol, so MCP-compatible agents can read scores, inspect
// breakdowns, and trigger recalculation alongside the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openargument/reasonrank/internal/engine"
	"github.com/openargument/reasonrank/internal/model"
)

// Server wraps the MCP server around the scoring engine.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    *engine.Engine
	logger    *slog.Logger
}

// New creates an MCP server with the scoring tools registered.
func New(eng *engine.Engine, logger *slog.Logger) *Server {
	s := &Server{engine: eng, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"reasonrank",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("get_score",
			mcplib.WithDescription("Get the cached overall score (0-100, 50 neutral) for a claim"),
			mcplib.WithString("claim_id", mcplib.Description("Claim UUID"), mcplib.Required()),
		),
		s.handleGetScore,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_breakdown",
			mcplib.WithDescription("Get the full contribution table for a claim: every argument and evidence item with its weight, uniqueness, linkage, and signed value"),
			mcplib.WithString("claim_id", mcplib.Description("Claim UUID"), mcplib.Required()),
		),
		s.handleGetBreakdown,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("recalculate",
			mcplib.WithDescription("Recompute a claim's score. Mode 'local' recomposes the claim's subtree; 'global' runs the damped fixed-point pass over the whole graph"),
			mcplib.WithString("claim_id", mcplib.Description("Claim UUID"), mcplib.Required()),
			mcplib.WithString("mode", mcplib.Description("'local' (default) or 'global'")),
		),
		s.handleRecalculate,
	)
}

func (s *Server) handleGetScore(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claimID, errRes := claimIDArg(request)
	if errRes != nil {
		return errRes, nil
	}

	score, err := s.engine.Score(ctx, claimID)
	if err != nil {
		return errorResult(fmt.Sprintf("score failed: %v", err)), nil
	}
	return jsonResult(score), nil
}

func (s *Server) handleGetBreakdown(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claimID, errRes := claimIDArg(request)
	if errRes != nil {
		return errRes, nil
	}

	bd, err := s.engine.Breakdown(ctx, claimID)
	if err != nil {
		return errorResult(fmt.Sprintf("breakdown failed: %v", err)), nil
	}
	return jsonResult(bd), nil
}

func (s *Server) handleRecalculate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claimID, errRes := claimIDArg(request)
	if errRes != nil {
		return errRes, nil
	}

	mode := model.RecalcMode(request.GetString("mode", string(model.RecalcLocal)))
	if !model.ValidRecalcMode(mode) {
		return errorResult(fmt.Sprintf("unknown mode %q", mode)), nil
	}

	score, err := s.engine.Recalculate(ctx, claimID, mode)
	if err != nil {
		return errorResult(fmt.Sprintf("recalculate failed: %v", err)), nil
	}
	s.logger.Info("mcp recalculate", "claim_id", claimID, "mode", mode)
	return jsonResult(score), nil
}

func claimIDArg(request mcplib.CallToolRequest) (uuid.UUID, *mcplib.CallToolResult) {
	raw := request.GetString("claim_id", "")
	if raw == "" {
		return uuid.Nil, errorResult("claim_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errorResult(fmt.Sprintf("invalid claim_id: %s", raw))
	}
	return id, nil
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
