// Package store persists the set of principals authorized to record
// purchases on any backpack.
package store

import (
	"context"
	"slices"
	"sync"

	id "backpack/pkg/domain"
)

// InMemory is a mutex-guarded agent set.
type InMemory struct {
	mu     sync.RWMutex
	agents map[id.Principal]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{agents: make(map[id.Principal]struct{})}
}

// SetAgent grants or revokes the agent flag. Both directions are idempotent.
func (s *InMemory) SetAgent(_ context.Context, principal id.Principal, allowed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if allowed {
		s.agents[principal] = struct{}{}
	} else {
		delete(s.agents, principal)
	}
	return nil
}

func (s *InMemory) IsAgent(_ context.Context, principal id.Principal) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.agents[principal]
	return ok, nil
}

// ListAgents returns the agents sorted lexically.
func (s *InMemory) ListAgents(_ context.Context) ([]id.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]id.Principal, 0, len(s.agents))
	for p := range s.agents {
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}
