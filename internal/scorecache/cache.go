// Package scorecache stores the last computed score per claim with a
// version counter and staleness flag.
//
// The cache is an explicit store passed by reference to the engine, not
// a package-level singleton, so each test gets an isolated instance.
// Readers always observe either the fully-old or fully-new value for a
// claim: entries are immutable once published and swapped by pointer.
package scorecache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openargument/reasonrank/internal/model"
)

type entry struct {
	score   model.Score
	version uint64
}

// Cache maps claim ids to their last computed score.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry

	// onPublish is called with every freshly published score, outside
	// the lock. Must be set before concurrent use.
	onPublish func(model.Score)
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[uuid.UUID]*entry)}
}

// OnPublish installs a hook observing every fresh score. Every computed
// score passes through Put, so this sees local recomputes, global
// passes, and background refreshes alike.
func (c *Cache) OnPublish(fn func(model.Score)) { c.onPublish = fn }

// Get returns the cached score for a claim without recomputing.
// A stale value is still returned — serving a score computed moments
// before the latest mutation is accepted eventual consistency.
func (c *Cache) Get(id uuid.UUID) (model.Score, bool) {
	c.mu.RLock()
	e := c.entries[id]
	c.mu.RUnlock()
	if e == nil {
		return model.Score{}, false
	}
	return e.score, true
}

// Put publishes a freshly computed score, clearing staleness and
// bumping the version. The stored ComputedAt is set here so all cache
// entries share one clock.
func (c *Cache) Put(id uuid.UUID, score model.Score) model.Score {
	score.ClaimID = id
	score.Stale = false
	if score.ComputedAt.IsZero() {
		score.ComputedAt = time.Now()
	}

	c.mu.Lock()
	var version uint64 = 1
	if prev := c.entries[id]; prev != nil {
		version = prev.version + 1
	}
	c.entries[id] = &entry{score: score, version: version}
	c.mu.Unlock()

	if c.onPublish != nil {
		c.onPublish(score)
	}
	return score
}

// MarkStale flags a cached score as outdated. Marking an already-stale
// or absent entry is a no-op; the return reports whether the entry
// transitioned, letting callers coalesce invalidation storms.
func (c *Cache) MarkStale(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.entries[id]
	if prev == nil || prev.score.Stale {
		return false
	}
	stale := prev.score
	stale.Stale = true
	c.entries[id] = &entry{score: stale, version: prev.version}
	return true
}

// Version returns the publish count for a claim, 0 when never computed.
func (c *Cache) Version(id uuid.UUID) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e := c.entries[id]; e != nil {
		return e.version
	}
	return 0
}

// Len returns the number of cached claims.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Drop removes a claim from the cache (claim deletion).
func (c *Cache) Drop(id uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
