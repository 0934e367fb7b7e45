package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field length limits for caller-supplied text. These bound the cost of
// similarity comparison (pairwise over siblings) and keep TEXT columns
// from filling with caller-controlled garbage.
const (
	MaxStatementLen = 16 * 1024 // 16 KB
	MaxCategoryLen  = 200
	MaxSourceURILen = 2048
)

// ErrValidation is the sentinel all mutation-boundary validation errors
// wrap. Validation failures abort the triggering mutation and propagate
// to the caller; they are never absorbed into a score.
var ErrValidation = errors.New("model: validation failed")

// ValidationError reports a single out-of-range or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: validation failed: %s: %s", e.Field, e.Message)
}

// Unwrap makes errors.Is(err, ErrValidation) work on all field errors.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// CreateClaimRequest is the request body for POST /v1/claims.
type CreateClaimRequest struct {
	Statement string `json:"statement"`
	Category  string `json:"category,omitempty"`
}

// Validate checks a claim creation request.
func (r CreateClaimRequest) Validate() error {
	if r.Statement == "" {
		return validationf("statement", "must not be empty")
	}
	if len(r.Statement) > MaxStatementLen {
		return validationf("statement", "exceeds maximum length of %d bytes", MaxStatementLen)
	}
	if len(r.Category) > MaxCategoryLen {
		return validationf("category", "exceeds maximum length of %d characters", MaxCategoryLen)
	}
	return nil
}

// AttachArgumentRequest is the request body for
// POST /v1/claims/{claim_id}/arguments.
type AttachArgumentRequest struct {
	// ClaimID references an existing claim as the argument's content.
	// Empty means a new content claim is created from Statement.
	ClaimID   *uuid.UUID `json:"claim_id,omitempty"`
	Statement string     `json:"statement,omitempty"`

	Side            Side       `json:"side"`
	EvidenceQuality float64    `json:"evidence_quality"`
	LogicalValidity float64    `json:"logical_validity"`
	Importance      float64    `json:"importance"`
	DimensionID     *uuid.UUID `json:"dimension_id,omitempty"`
}

// Validate checks an argument attachment request.
func (r AttachArgumentRequest) Validate() error {
	if r.ClaimID == nil && r.Statement == "" {
		return validationf("statement", "either claim_id or statement is required")
	}
	if len(r.Statement) > MaxStatementLen {
		return validationf("statement", "exceeds maximum length of %d bytes", MaxStatementLen)
	}
	return ValidateArgument(Argument{
		Side:            r.Side,
		EvidenceQuality: r.EvidenceQuality,
		LogicalValidity: r.LogicalValidity,
		Importance:      r.Importance,
	})
}

// AttachEvidenceRequest is the request body for
// POST /v1/arguments/{argument_id}/evidence and
// POST /v1/claims/{claim_id}/evidence.
type AttachEvidenceRequest struct {
	Side         Side         `json:"side"`
	Tier         EvidenceTier `json:"tier"`
	Credibility  float64      `json:"credibility"`
	Verification Verification `json:"verification,omitempty"`
	Linkage      *float64     `json:"linkage,omitempty"` // default 1.0 (direct attachment)
	Statement    string       `json:"statement,omitempty"`
	SourceURI    string       `json:"source_uri,omitempty"`
}

// Validate checks an evidence attachment request.
func (r AttachEvidenceRequest) Validate() error {
	if len(r.Statement) > MaxStatementLen {
		return validationf("statement", "exceeds maximum length of %d bytes", MaxStatementLen)
	}
	if len(r.SourceURI) > MaxSourceURILen {
		return validationf("source_uri", "exceeds maximum length of %d characters", MaxSourceURILen)
	}
	e := Evidence{
		Side:         r.Side,
		Tier:         r.Tier,
		Credibility:  r.Credibility,
		Verification: r.Verification,
	}
	if e.Verification == "" {
		e.Verification = VerificationUnverified
	}
	if r.Linkage != nil {
		e.Linkage = *r.Linkage
	} else {
		e.Linkage = 1.0
	}
	return ValidateEvidence(e)
}

// RecalculateRequest is the request body for
// POST /v1/claims/{claim_id}/recalculate.
type RecalculateRequest struct {
	Mode RecalcMode `json:"mode,omitempty"` // default local
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the response body for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptime_sec"`
	Database  string `json:"database"`
}
