package store

import (
	"context"
	"sync"

	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
	"backpack/pkg/platform/sentinel"
)

// backpackLedger holds one backpack's item sequence and score table behind a
// single lock, so an append and its score update are one atomic unit and a
// reader sees either neither or both.
type backpackLedger struct {
	mu     sync.RWMutex
	items  []models.PurchaseItem
	scores *models.ScoreTable
}

// InMemory keeps ledgers in process memory. Appends to different backpacks
// only contend on the index lock long enough to find their ledger.
type InMemory struct {
	mu      sync.RWMutex
	ledgers map[id.BackpackID]*backpackLedger
}

func NewInMemory() *InMemory {
	return &InMemory{ledgers: make(map[id.BackpackID]*backpackLedger)}
}

func (s *InMemory) lookup(backpackID id.BackpackID) (*backpackLedger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[backpackID]
	return l, ok
}

func (s *InMemory) lookupOrCreate(backpackID id.BackpackID) *backpackLedger {
	if l, ok := s.lookup(backpackID); ok {
		return l
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.ledgers[backpackID]; ok {
		return l
	}
	l := &backpackLedger{scores: models.NewScoreTable()}
	s.ledgers[backpackID] = l
	return l
}

// Append records item and applies its weight to the score table, returning
// the new sequence length.
func (s *InMemory) Append(ctx context.Context, backpackID id.BackpackID, item models.PurchaseItem) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l := s.lookupOrCreate(backpackID)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, item)
	l.scores.Apply(item)
	return len(l.items), nil
}

func (s *InMemory) Count(_ context.Context, backpackID id.BackpackID) (int, error) {
	l, ok := s.lookup(backpackID)
	if !ok {
		return 0, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items), nil
}

func (s *InMemory) ItemAt(_ context.Context, backpackID id.BackpackID, index int) (models.PurchaseItem, error) {
	l, ok := s.lookup(backpackID)
	if !ok || index < 0 {
		return models.PurchaseItem{}, sentinel.ErrOutOfRange
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= len(l.items) {
		return models.PurchaseItem{}, sentinel.ErrOutOfRange
	}
	return l.items[index], nil
}

// Snapshot copies the item sequence and score table under one read lock.
func (s *InMemory) Snapshot(_ context.Context, backpackID id.BackpackID) (models.Snapshot, error) {
	snap := models.Snapshot{BackpackID: backpackID, Scores: map[string]uint64{}}
	l, ok := s.lookup(backpackID)
	if !ok {
		return snap, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap.Items = append([]models.PurchaseItem{}, l.items...)
	snap.Scores = l.scores.Map()
	return snap, nil
}
