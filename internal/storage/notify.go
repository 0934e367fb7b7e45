package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// invalidationChannel carries claim ids whose score inputs changed, so
// every instance can stale its own cache entries regardless of which
// one took the write.
const invalidationChannel = "reasonrank_invalidations"

// mutated fires the local invalidation hook and broadcasts the claim id
// to other instances. The broadcast is best-effort: a failed NOTIFY is
// logged, and the stale score self-corrects on the next recompute.
func (db *DB) mutated(ctx context.Context, claimID uuid.UUID) {
	if db.onMutate != nil {
		db.onMutate(claimID)
	}
	if _, err := db.pool.Exec(ctx,
		`SELECT pg_notify($1, $2)`, invalidationChannel, claimID.String(),
	); err != nil {
		db.logger.Warn("storage: broadcast invalidation failed",
			"claim_id", claimID, "error", err)
	}
}

// BroadcastInvalidation notifies every listening instance that the
// claim's score inputs changed, without firing the local hook. Used by
// maintenance tooling that recomputes out of process.
func (db *DB) BroadcastInvalidation(ctx context.Context, claimID uuid.UUID) error {
	if _, err := db.pool.Exec(ctx,
		`SELECT pg_notify($1, $2)`, invalidationChannel, claimID.String(),
	); err != nil {
		return fmt.Errorf("storage: broadcast invalidation: %w", err)
	}
	return nil
}

// ListenInvalidations blocks on the dedicated notify connection,
// feeding remote invalidations into the local hook until ctx is
// cancelled. Requires a notify DSN at construction.
//
// The originating instance hears its own broadcasts too; staleness
// marking is idempotent, so the duplicate is harmless.
func (db *DB) ListenInvalidations(ctx context.Context) error {
	if db.notifyConn == nil {
		return fmt.Errorf("storage: no notify connection configured")
	}
	if _, err := db.notifyConn.Exec(ctx, `LISTEN `+invalidationChannel); err != nil {
		return fmt.Errorf("storage: listen %s: %w", invalidationChannel, err)
	}

	for {
		notification, err := db.notifyConn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("storage: wait for notification: %w", err)
		}
		id, err := uuid.Parse(notification.Payload)
		if err != nil {
			db.logger.Warn("storage: ignoring malformed invalidation",
				"payload", notification.Payload)
			continue
		}
		if db.onMutate != nil {
			db.onMutate(id)
		}
	}
}
