package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openargument/reasonrank/internal/model"
)

// Memory is an in-memory Store and Mutator. It backs engine tests and
// embedded library use with no external storage.
type Memory struct {
	mu         sync.RWMutex
	claims     map[uuid.UUID]model.Claim
	arguments  map[uuid.UUID]model.Argument
	evidence   map[uuid.UUID]model.Evidence
	dimensions map[uuid.UUID]model.Dimension
	linkages   map[[2]uuid.UUID]model.LinkageEdge

	// onMutate is called with the claim whose score inputs changed,
	// after the write but before the mutation returns.
	onMutate func(claimID uuid.UUID)
}

// NewMemory creates an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{
		claims:     make(map[uuid.UUID]model.Claim),
		arguments:  make(map[uuid.UUID]model.Argument),
		evidence:   make(map[uuid.UUID]model.Evidence),
		dimensions: make(map[uuid.UUID]model.Dimension),
		linkages:   make(map[[2]uuid.UUID]model.LinkageEdge),
	}
}

// OnMutate installs the invalidation hook. Must be set before concurrent
// use.
func (m *Memory) OnMutate(fn func(claimID uuid.UUID)) { m.onMutate = fn }

func (m *Memory) notify(claimID uuid.UUID) {
	if m.onMutate != nil {
		m.onMutate(claimID)
	}
}

// Ping always succeeds; there is no backing connection.
func (m *Memory) Ping(context.Context) error { return nil }

// GetClaim implements Store.
func (m *Memory) GetClaim(_ context.Context, id uuid.UUID) (model.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claims[id]
	if !ok {
		return model.Claim{}, ErrNotFound
	}
	return c, nil
}

// ListArguments implements Store.
func (m *Memory) ListArguments(_ context.Context, claimID uuid.UUID) ([]model.Argument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var args []model.Argument
	for _, a := range m.arguments {
		if a.ParentID != claimID {
			continue
		}
		if content, ok := m.claims[a.ClaimID]; ok && a.Statement == "" {
			a.Statement = content.Statement
		}
		args = append(args, a)
	}
	sort.Slice(args, func(i, j int) bool { return args[i].SubmittedAt.Before(args[j].SubmittedAt) })
	return args, nil
}

// ListEvidence implements Store.
func (m *Memory) ListEvidence(_ context.Context, claimID uuid.UUID) ([]model.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []model.Evidence
	for _, e := range m.evidence {
		if e.TargetID == claimID {
			items = append(items, e)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SubmittedAt.Before(items[j].SubmittedAt) })
	return items, nil
}

// ListDimensions implements Store.
func (m *Memory) ListDimensions(_ context.Context, claimID uuid.UUID) ([]model.Dimension, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var dims []model.Dimension
	for _, d := range m.dimensions {
		if d.ClaimID == claimID {
			dims = append(dims, d)
		}
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i].Kind < dims[j].Kind })
	return dims, nil
}

// GetLinkage implements Store.
func (m *Memory) GetLinkage(_ context.Context, fromID, toID uuid.UUID) (model.LinkageEdge, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edge, ok := m.linkages[[2]uuid.UUID{fromID, toID}]
	return edge, ok, nil
}

// ListParents implements Store.
func (m *Memory) ListParents(_ context.Context, claimID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{})
	var parents []uuid.UUID
	add := func(id uuid.UUID) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			parents = append(parents, id)
		}
	}
	for _, a := range m.arguments {
		if a.ClaimID == claimID {
			add(a.ParentID)
		}
	}
	for key, edge := range m.linkages {
		if edge.DebateClaimID != nil && *edge.DebateClaimID == claimID {
			// The edge's target claim depends on the debate's outcome.
			add(key[1])
		}
	}
	return parents, nil
}

// ListClaimIDs implements Store.
func (m *Memory) ListClaimIDs(_ context.Context, activeOnly bool) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(m.claims))
	for id, c := range m.claims {
		if activeOnly && c.Status != model.ClaimStatusActive {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// CreateClaim implements Mutator.
func (m *Memory) CreateClaim(_ context.Context, c model.Claim) error {
	m.mu.Lock()
	if c.Status == "" {
		c.Status = model.ClaimStatusActive
	}
	m.claims[c.ID] = c
	m.mu.Unlock()
	return nil
}

// SetClaimStatus implements Mutator.
func (m *Memory) SetClaimStatus(_ context.Context, id uuid.UUID, status model.ClaimStatus) error {
	m.mu.Lock()
	c, ok := m.claims[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	c.Status = status
	m.claims[id] = c
	m.mu.Unlock()
	return nil
}

// DeleteClaim implements Mutator.
func (m *Memory) DeleteClaim(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	if _, ok := m.claims[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	for _, a := range m.arguments {
		if a.ClaimID == id {
			m.mu.Unlock()
			return ErrReferenced
		}
	}
	delete(m.claims, id)
	// Linkage edges debating this claim fall back to their static
	// strength, matching the SET NULL the relational stores apply.
	for key, edge := range m.linkages {
		if edge.DebateClaimID != nil && *edge.DebateClaimID == id {
			edge.DebateClaimID = nil
			m.linkages[key] = edge
		}
	}
	m.mu.Unlock()
	return nil
}

// AttachArgument implements Mutator.
func (m *Memory) AttachArgument(_ context.Context, a model.Argument) error {
	if err := model.ValidateArgument(a); err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.claims[a.ParentID]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if _, ok := m.claims[a.ClaimID]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.arguments[a.ID] = a
	m.mu.Unlock()
	m.notify(a.ParentID)
	return nil
}

// GetArgument implements Mutator.
func (m *Memory) GetArgument(_ context.Context, argumentID uuid.UUID) (model.Argument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.arguments[argumentID]
	if !ok {
		return model.Argument{}, ErrNotFound
	}
	return a, nil
}

// UpdateArgumentQuality implements Mutator.
func (m *Memory) UpdateArgumentQuality(_ context.Context, argumentID uuid.UUID, u model.QualityUpdate) (model.Argument, error) {
	if err := model.ValidateQualityUpdate(u); err != nil {
		return model.Argument{}, err
	}
	m.mu.Lock()
	a, ok := m.arguments[argumentID]
	if !ok {
		m.mu.Unlock()
		return model.Argument{}, ErrNotFound
	}
	if u.EvidenceQuality != nil {
		a.EvidenceQuality = *u.EvidenceQuality
	}
	if u.LogicalValidity != nil {
		a.LogicalValidity = *u.LogicalValidity
	}
	if u.Importance != nil {
		a.Importance = *u.Importance
	}
	m.arguments[argumentID] = a
	m.mu.Unlock()
	m.notify(a.ParentID)
	return a, nil
}

// DetachArgument implements Mutator.
func (m *Memory) DetachArgument(_ context.Context, argumentID uuid.UUID) (model.Argument, error) {
	m.mu.Lock()
	a, ok := m.arguments[argumentID]
	if !ok {
		m.mu.Unlock()
		return model.Argument{}, ErrNotFound
	}
	delete(m.arguments, argumentID)
	m.mu.Unlock()
	m.notify(a.ParentID)
	return a, nil
}

// AttachEvidence implements Mutator.
func (m *Memory) AttachEvidence(_ context.Context, e model.Evidence) error {
	if err := model.ValidateEvidence(e); err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.claims[e.TargetID]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.evidence[e.ID] = e
	m.mu.Unlock()
	m.notify(e.TargetID)
	return nil
}

// SetEvidenceVerification implements Mutator.
func (m *Memory) SetEvidenceVerification(_ context.Context, evidenceID uuid.UUID, v model.Verification) (model.Evidence, error) {
	if !model.ValidVerification(v) {
		return model.Evidence{}, &model.ValidationError{Field: "verification", Message: "unknown verification status"}
	}
	m.mu.Lock()
	e, ok := m.evidence[evidenceID]
	if !ok {
		m.mu.Unlock()
		return model.Evidence{}, ErrNotFound
	}
	e.Verification = v
	m.evidence[evidenceID] = e
	m.mu.Unlock()
	m.notify(e.TargetID)
	return e, nil
}

// UpsertLinkage implements Mutator.
func (m *Memory) UpsertLinkage(_ context.Context, edge model.LinkageEdge) error {
	if err := model.ValidateLinkage("strength", edge.Strength); err != nil {
		return err
	}
	m.mu.Lock()
	m.linkages[[2]uuid.UUID{edge.FromID, edge.ToID}] = edge
	m.mu.Unlock()
	m.notify(edge.ToID)
	return nil
}

// CreateDimension implements Mutator.
func (m *Memory) CreateDimension(_ context.Context, d model.Dimension) error {
	if err := model.ValidateDimension(d); err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.claims[d.ClaimID]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.dimensions[d.ID] = d
	m.mu.Unlock()
	m.notify(d.ClaimID)
	return nil
}
