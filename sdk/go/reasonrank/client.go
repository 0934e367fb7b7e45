package reasonrank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the ReasonRank server (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey is the bootstrap secret exchanged for a JWT. The key's
	// configured role (reader, editor, admin) bounds what the client can do.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the ReasonRank scoring API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL or APIKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reasonrank: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("reasonrank: APIKey is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		client:   httpClient,
		tokenMgr: newTokenManager(baseURL, cfg.APIKey, httpClient),
	}, nil
}

// ---------------------------------------------------------------------------
// Scores
// ---------------------------------------------------------------------------

// Score returns a claim's current score. The server serves the cached
// value when one exists, stale included; check Score.Stale to detect a
// pending recomputation.
func (c *Client) Score(ctx context.Context, claimID uuid.UUID) (*Score, error) {
	var resp Score
	if err := c.get(ctx, "/v1/claims/"+claimID.String()+"/score", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Breakdown returns the full contribution table for a claim. The server
// always recomputes, so the breakdown reconciles with the score served
// right after it.
func (c *Client) Breakdown(ctx context.Context, claimID uuid.UUID) (*Breakdown, error) {
	var resp Breakdown
	if err := c.get(ctx, "/v1/claims/"+claimID.String()+"/breakdown", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recalculate forces a recomputation. Requires the editor role.
func (c *Client) Recalculate(ctx context.Context, claimID uuid.UUID, mode RecalcMode) (*Score, error) {
	body := map[string]any{}
	if mode != "" {
		body["mode"] = mode
	}
	var resp Score
	if err := c.post(ctx, "/v1/claims/"+claimID.String()+"/recalculate", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Invalidate marks a claim and its ancestors stale. Recomputation
// happens in the background. Requires the editor role.
func (c *Client) Invalidate(ctx context.Context, claimID uuid.UUID) (*InvalidateResponse, error) {
	var resp InvalidateResponse
	if err := c.post(ctx, "/v1/claims/"+claimID.String()+"/invalidate", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Graph mutations (editor role)
// ---------------------------------------------------------------------------

// CreateClaim creates a new claim.
func (c *Client) CreateClaim(ctx context.Context, req CreateClaimRequest) (*Claim, error) {
	var resp Claim
	if err := c.post(ctx, "/v1/claims", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetClaimStatus changes a claim's lifecycle status.
func (c *Client) SetClaimStatus(ctx context.Context, claimID uuid.UUID, status ClaimStatus) error {
	body := map[string]any{"status": status}
	return c.patch(ctx, "/v1/claims/"+claimID.String()+"/status", body, nil)
}

// DeleteClaim deletes a claim. Fails with a conflict error while any
// argument still references the claim as its content.
func (c *Client) DeleteClaim(ctx context.Context, claimID uuid.UUID) error {
	return c.doDelete(ctx, "/v1/claims/"+claimID.String(), nil)
}

// AttachArgument attaches an argument to a claim.
func (c *Client) AttachArgument(ctx context.Context, claimID uuid.UUID, req AttachArgumentRequest) (*Argument, error) {
	var resp Argument
	if err := c.post(ctx, "/v1/claims/"+claimID.String()+"/arguments", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AttachClaimEvidence files evidence directly against a claim.
func (c *Client) AttachClaimEvidence(ctx context.Context, claimID uuid.UUID, req AttachEvidenceRequest) (*Evidence, error) {
	var resp Evidence
	if err := c.post(ctx, "/v1/claims/"+claimID.String()+"/evidence", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AttachArgumentEvidence files evidence against an argument. The
// evidence lands on the argument's content claim.
func (c *Client) AttachArgumentEvidence(ctx context.Context, argumentID uuid.UUID, req AttachEvidenceRequest) (*Evidence, error) {
	var resp Evidence
	if err := c.post(ctx, "/v1/arguments/"+argumentID.String()+"/evidence", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateQuality changes an argument's quality dimensions. Nil fields
// keep their current values.
func (c *Client) UpdateQuality(ctx context.Context, argumentID uuid.UUID, update QualityUpdate) (*Argument, error) {
	var resp Argument
	if err := c.patch(ctx, "/v1/arguments/"+argumentID.String()+"/quality", update, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DetachArgument removes an argument attachment. The content claim
// survives and can be re-attached elsewhere.
func (c *Client) DetachArgument(ctx context.Context, argumentID uuid.UUID) (*Argument, error) {
	var resp Argument
	if err := c.doDelete(ctx, "/v1/arguments/"+argumentID.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetVerification changes an evidence item's fact-check status.
func (c *Client) SetVerification(ctx context.Context, evidenceID uuid.UUID, v Verification) (*Evidence, error) {
	body := map[string]any{"verification": v}
	var resp Evidence
	if err := c.patch(ctx, "/v1/evidence/"+evidenceID.String()+"/verification", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateDimension declares a scoring dimension on a claim.
func (c *Client) CreateDimension(ctx context.Context, claimID uuid.UUID, kind string, weight float64) error {
	body := map[string]any{"kind": kind, "weight": weight}
	return c.post(ctx, "/v1/claims/"+claimID.String()+"/dimensions", body, nil)
}

// UpsertLinkage records how strongly one claim's outcome bears on another.
func (c *Client) UpsertLinkage(ctx context.Context, edge LinkageEdge) error {
	return c.put(ctx, "/v1/linkages", edge, nil)
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has invalid credentials.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.getNoAuth(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	return c.send(ctx, http.MethodPost, path, body, dest)
}

func (c *Client) put(ctx context.Context, path string, body any, dest any) error {
	return c.send(ctx, http.MethodPut, path, body, dest)
}

func (c *Client) patch(ctx context.Context, path string, body any, dest any) error {
	return c.send(ctx, http.MethodPatch, path, body, dest)
}

func (c *Client) send(ctx context.Context, method, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("reasonrank: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("reasonrank: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("reasonrank: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("reasonrank: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) getNoAuth(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("reasonrank: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("reasonrank: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("reasonrank: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reasonrank: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content — nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("reasonrank: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
