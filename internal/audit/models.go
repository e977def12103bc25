package audit

import (
	"time"

	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
)

// EventType names a state change worth telling the outside world about.
type EventType string

const (
	EventBackpackIssued      EventType = "backpack_issued"
	EventBackpackTransferred EventType = "backpack_transferred"
	EventAgentSet            EventType = "agent_set"
	EventPurchaseRecorded    EventType = "purchase_recorded"
	EventImageSet            EventType = "image_set"
)

// Event is emitted after a successful mutation and carries the full argument
// set of the call that produced it. Events are notifications: the state
// change they describe is already committed when they are published.
type Event struct {
	ID        id.EventID `json:"id"`
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
	// Actor is the caller that performed the mutation.
	Actor      id.Principal  `json:"actor"`
	BackpackID id.BackpackID `json:"backpack_id,omitempty"`
	// Principal is the subject of agent_set and the new owner for
	// backpack_issued and backpack_transferred.
	Principal id.Principal         `json:"principal,omitempty"`
	Allowed   bool                 `json:"allowed"`
	Image     string               `json:"image"`
	Item      *models.PurchaseItem `json:"item,omitempty"`
}

// Key is the partitioning key for ordered sinks: the backpack for
// backpack-scoped events, otherwise the subject principal.
func (e Event) Key() string {
	if !e.BackpackID.IsNil() {
		return e.BackpackID.String()
	}
	return e.Principal.String()
}
