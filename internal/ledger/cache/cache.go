// Package cache holds opt-in strategies for remembering resolved top
// categories. Entries are keyed by backpack and item count, so any append
// makes the previous entry unreachable without explicit invalidation.
package cache

import (
	"context"
	"sync"

	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
)

// Cache stores resolved top categories by (backpack, item count).
type Cache interface {
	Get(ctx context.Context, backpackID id.BackpackID, count int) (models.Category, bool, error)
	Put(ctx context.Context, backpackID id.BackpackID, count int, category models.Category) error
}

type entry struct {
	count    int
	category models.Category
}

// InMemory keeps only the latest count per backpack.
type InMemory struct {
	mu      sync.RWMutex
	entries map[id.BackpackID]entry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[id.BackpackID]entry)}
}

func (c *InMemory) Get(_ context.Context, backpackID id.BackpackID, count int) (models.Category, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[backpackID]
	if !ok || e.count != count {
		return models.Category{}, false, nil
	}
	return e.category, true, nil
}

// Put never replaces a newer entry with an older one.
func (c *InMemory) Put(_ context.Context, backpackID id.BackpackID, count int, category models.Category) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[backpackID]; ok && e.count > count {
		return nil
	}
	c.entries[backpackID] = entry{count: count, category: category}
	return nil
}
