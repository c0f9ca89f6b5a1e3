package writequeue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncLog is one per-attempt record of worker activity, persisted for the
// operational visibility endpoint. Carries enough context to diagnose a
// failure without replaying the operation.
type SyncLog struct {
	ID             uuid.UUID
	OrgID          uuid.UUID
	ItemID         uuid.UUID
	EntityType     string
	ExternalID     string
	Operation      OperationKind
	Attempt        int
	Status         ItemStatus
	UpstreamStatus int
	Message        string
	CreatedAt      time.Time
}

// NewSyncLog records one attempt outcome for a queue item
func NewSyncLog(item *Item, upstreamStatus int, message string) *SyncLog {
	return &SyncLog{
		ID:             uuid.New(),
		OrgID:          item.OrgID,
		ItemID:         item.ID,
		EntityType:     item.EntityType,
		ExternalID:     item.ExternalID,
		Operation:      item.Operation,
		Attempt:        item.RetryCount,
		Status:         item.Status,
		UpstreamStatus: upstreamStatus,
		Message:        message,
		CreatedAt:      time.Now(),
	}
}

// SyncLogRepository defines persistence for sync logs
type SyncLogRepository interface {
	// Save appends a log entry
	Save(ctx context.Context, log *SyncLog) error
	// FindRecent lists the newest entries for an organization
	FindRecent(ctx context.Context, orgID uuid.UUID, limit int) ([]*SyncLog, error)
	// FindByItem lists entries for one queue item, oldest first
	FindByItem(ctx context.Context, itemID uuid.UUID) ([]*SyncLog, error)
}
