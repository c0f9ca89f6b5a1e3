package writequeue

import (
	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/shared"
)

// Event types emitted on write queue state transitions. Keyed by entity
// for real-time status display in the web layer.
const (
	EventTypeItemQueued     = "write_queue.item_queued"
	EventTypeItemProcessing = "write_queue.item_processing"
	EventTypeItemCompleted  = "write_queue.item_completed"
	EventTypeItemRetrying   = "write_queue.item_retrying"
	EventTypeItemFailed     = "write_queue.item_failed"
	EventTypeItemConflicted = "write_queue.item_conflicted"
)

// aggregateType for queue item events
const aggregateType = "write_queue_item"

// ItemStatusEvent is published on every queue item state transition
type ItemStatusEvent struct {
	shared.BaseDomainEvent
	ItemID     uuid.UUID `json:"item_id"`
	EntityType string    `json:"entity_type"`
	ExternalID string    `json:"external_id"`
	Status     ItemStatus `json:"status"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error,omitempty"`
	ConflictID *uuid.UUID `json:"conflict_id,omitempty"`
}

// NewItemStatusEvent builds the transition event for an item. The event is
// keyed by the target record so clients can subscribe per entity.
func NewItemStatusEvent(eventType string, item *Item) *ItemStatusEvent {
	return &ItemStatusEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, item.OrgID, item.RecordID, aggregateType),
		ItemID:          item.ID,
		EntityType:      item.EntityType,
		ExternalID:      item.ExternalID,
		Status:          item.Status,
		RetryCount:      item.RetryCount,
		Error:           item.LastError,
		ConflictID:      item.ConflictID,
	}
}
