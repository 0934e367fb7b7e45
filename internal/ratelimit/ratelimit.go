// Package ratelimit provides per-key request rate limiting for the
// scoring API. The in-memory token bucket covers single-instance
// deployments; the Limiter interface is the seam for a shared backend
// when running more than one instance.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. The key is
	// opaque; callers construct it (client IP, token subject). An error
	// signals a limiter malfunction and callers treat it as fail-open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
