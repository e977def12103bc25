// Package store persists backpack identities and their owners.
package store

import (
	"context"
	"sync"

	id "backpack/pkg/domain"
	"backpack/pkg/platform/sentinel"
)

// InMemory assigns identifiers from a counter; identifiers are never reused.
type InMemory struct {
	mu     sync.RWMutex
	owners map[id.BackpackID]id.Principal
	last   id.BackpackID
}

func NewInMemory() *InMemory {
	return &InMemory{owners: make(map[id.BackpackID]id.Principal)}
}

// Issue assigns the next identifier to owner.
func (s *InMemory) Issue(_ context.Context, owner id.Principal) (id.BackpackID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	s.owners[s.last] = owner
	return s.last, nil
}

func (s *InMemory) OwnerOf(_ context.Context, backpackID id.BackpackID) (id.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[backpackID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return owner, nil
}

// Transfer moves ownership only if from is still the owner.
func (s *InMemory) Transfer(_ context.Context, backpackID id.BackpackID, from, to id.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[backpackID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if owner != from {
		return sentinel.ErrConflict
	}
	s.owners[backpackID] = to
	return nil
}
