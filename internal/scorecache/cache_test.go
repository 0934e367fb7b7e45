package scorecache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openargument/reasonrank/internal/model"
)

func TestCachePutGet(t *testing.T) {
	c := New()
	id := uuid.New()

	_, ok := c.Get(id)
	assert.False(t, ok)
	assert.Zero(t, c.Version(id))

	stored := c.Put(id, model.Score{Overall: 72.5})
	assert.Equal(t, id, stored.ClaimID)
	assert.False(t, stored.Stale)
	assert.False(t, stored.ComputedAt.IsZero())

	got, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, 72.5, got.Overall)
	assert.Equal(t, uint64(1), c.Version(id))

	c.Put(id, model.Score{Overall: 60})
	assert.Equal(t, uint64(2), c.Version(id))
}

func TestCacheMarkStale(t *testing.T) {
	c := New()
	id := uuid.New()

	assert.False(t, c.MarkStale(id), "absent entries have nothing to mark")

	c.Put(id, model.Score{Overall: 80})
	assert.True(t, c.MarkStale(id))
	assert.False(t, c.MarkStale(id), "already stale, no transition")

	got, ok := c.Get(id)
	require.True(t, ok)
	assert.True(t, got.Stale, "stale values are still served")
	assert.Equal(t, 80.0, got.Overall)
	assert.Equal(t, uint64(1), c.Version(id), "marking stale is not a publish")

	fresh := c.Put(id, model.Score{Overall: 81})
	assert.False(t, fresh.Stale, "publish clears staleness")
	assert.Equal(t, uint64(2), c.Version(id))
}

func TestCacheDrop(t *testing.T) {
	c := New()
	id := uuid.New()
	c.Put(id, model.Score{Overall: 55})
	require.Equal(t, 1, c.Len())

	c.Drop(id)
	_, ok := c.Get(id)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New()
	id := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			c.Put(id, model.Score{Overall: v})
			c.Get(id)
			c.MarkStale(id)
		}(float64(i))
	}
	wg.Wait()

	got, ok := c.Get(id)
	require.True(t, ok)
	assert.GreaterOrEqual(t, got.Overall, 0.0)
	assert.Equal(t, uint64(16), c.Version(id))
}

func TestQueueCoalesces(t *testing.T) {
	var mu sync.Mutex
	calls := make(map[uuid.UUID]int)
	done := make(chan struct{}, 8)

	q := NewQueue(20*time.Millisecond, func(_ context.Context, id uuid.UUID) error {
		mu.Lock()
		calls[id]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go q.Run(ctx)

	id := uuid.New()
	q.Enqueue(id)
	q.Enqueue(id)
	q.Enqueue(id)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recompute never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls[id], "burst of enqueues collapses to one recompute")
	assert.Zero(t, q.Len())
}

func TestQueueRunStopsOnCancel(t *testing.T) {
	q := NewQueue(time.Millisecond, func(context.Context, uuid.UUID) error { return nil }, nil)
	ctx, cancel := context.WithCancel(t.Context())

	errCh := make(chan error, 1)
	go func() { errCh <- q.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
