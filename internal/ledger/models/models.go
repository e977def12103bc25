package models

import (
	"time"

	id "backpack/pkg/domain"
)

// PurchaseItem is one recorded purchase. Items are immutable once appended:
// there is no update or delete path, and sequence position is permanent.
type PurchaseItem struct {
	Product    string    `json:"product"`
	Category   string    `json:"category"`
	TerpeneTag string    `json:"terpene_tag"`
	Amount     uint64    `json:"amount"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Weight is the score contribution of an item. A zero amount still counts
// as one unit of engagement.
func (i PurchaseItem) Weight() uint64 {
	if i.Amount == 0 {
		return 1
	}
	return i.Amount
}

// NewPurchase is the caller-supplied part of an item; RecordedAt is stamped
// by the ledger at append time.
type NewPurchase struct {
	Product    string
	Category   string
	TerpeneTag string
	Amount     uint64
}

// Stamp turns a purchase request into an item recorded at now.
func (p NewPurchase) Stamp(now time.Time) PurchaseItem {
	return PurchaseItem{
		Product:    p.Product,
		Category:   p.Category,
		TerpeneTag: p.TerpeneTag,
		Amount:     p.Amount,
		RecordedAt: now.UTC(),
	}
}

// Category is a resolved dominant category. The zero value (empty label,
// score 0) is the answer for a backpack with no items.
type Category struct {
	Label string `json:"label"`
	Score uint64 `json:"score"`
}

// CategoryScore is one row of a backpack's score table.
type CategoryScore struct {
	Tag   string `json:"tag"`
	Score uint64 `json:"score"`
}

// Snapshot is a consistent view of one backpack: the item sequence and the
// score table as they stood after the same append.
type Snapshot struct {
	BackpackID id.BackpackID
	Items      []PurchaseItem
	Scores     map[string]uint64
}

// Count returns the number of items in the snapshot.
func (s Snapshot) Count() int {
	return len(s.Items)
}

// Receipt describes a successful append.
type Receipt struct {
	BackpackID id.BackpackID `json:"backpack_id"`
	Index      int           `json:"index"`
	Count      int           `json:"count"`
	Item       PurchaseItem  `json:"item"`
}
