package scorecache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecomputeFunc recomputes one claim's score. The queue treats an error
// as transient: it is logged and the claim stays stale until the next
// invalidation or an explicit recalculation.
type RecomputeFunc func(ctx context.Context, claimID uuid.UUID) error

// Queue coalesces invalidation bursts into background recomputes. A
// claim enqueued many times within the debounce window is recomputed
// once. Scores stay stale-but-servable in the meantime.
type Queue struct {
	mu      sync.Mutex
	pending map[uuid.UUID]struct{}

	wake     chan struct{}
	debounce time.Duration
	fn       RecomputeFunc
	logger   *slog.Logger
}

// NewQueue creates a recompute queue. Run must be started for enqueued
// claims to be processed.
func NewQueue(debounce time.Duration, fn RecomputeFunc, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		pending:  make(map[uuid.UUID]struct{}),
		wake:     make(chan struct{}, 1),
		debounce: debounce,
		fn:       fn,
		logger:   logger,
	}
}

// Enqueue schedules a claim for recomputation. Safe to call from
// mutation hooks; never blocks.
func (q *Queue) Enqueue(claimID uuid.UUID) {
	q.mu.Lock()
	q.pending[claimID] = struct{}{}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of claims waiting for recomputation.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run processes the queue until ctx is cancelled. After each wake it
// waits out the debounce window so rapid mutation bursts collapse into
// one recompute per claim, then drains the pending set.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}

		if q.debounce > 0 {
			timer := time.NewTimer(q.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		for _, id := range q.drain() {
			if err := q.fn(ctx, id); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				q.logger.Warn("scorecache: background recompute failed",
					"claim_id", id, "error", err)
			}
		}
	}
}

func (q *Queue) drain() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	clear(q.pending)
	return ids
}
