package hitl

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process CaseStore used when no database is
// configured. Cases do not survive a restart.
type MemoryStore struct {
	mu    sync.Mutex
	cases map[string]Case
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory case store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases: make(map[string]Case),
		now:   time.Now,
	}
}

// Create stores a new case unless the session already has an open one, in
// which case the existing case is returned unchanged.
func (s *MemoryStore) Create(_ context.Context, c Case) (Case, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.cases {
		if existing.SessionID == c.SessionID && existing.Open() {
			return existing, false, nil
		}
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.Status = StatusPending
	s.cases[c.ID] = c
	return c, true, nil
}

// Get returns the case with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return Case{}, ErrCaseNotFound
	}
	return c, nil
}

// List returns cases with the given status, or all cases when status is
// empty. High priority cases come first, oldest first within a priority.
func (s *MemoryStore) List(_ context.Context, status Status) ([]Case, error) {
	s.mu.Lock()
	out := make([]Case, 0, len(s.cases))
	for _, c := range s.cases {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority == PriorityHigh
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Claim transitions a pending case to in_progress.
func (s *MemoryStore) Claim(_ context.Context, id string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return Case{}, ErrCaseNotFound
	}
	switch c.Status {
	case StatusResolved:
		return Case{}, ErrCaseResolved
	case StatusInProgress:
		return Case{}, ErrCaseClaimed
	}
	c.Status = StatusInProgress
	s.cases[id] = c
	return c, nil
}

// Resolve transitions any open case to resolved, recording the reply.
func (s *MemoryStore) Resolve(_ context.Context, id, reply string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return Case{}, ErrCaseNotFound
	}
	if c.Status == StatusResolved {
		return Case{}, ErrCaseResolved
	}
	now := s.now()
	c.Status = StatusResolved
	c.ReviewerReply = reply
	c.ResolvedAt = &now
	s.cases[id] = c
	return c, nil
}
