package writequeue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/shared"
)

// ItemStatus represents the status of a write queue item
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// OperationKind is the kind of outbound write
type OperationKind string

const (
	OperationUpdate OperationKind = "update"
	// OperationDelete is translated by the write client into a
	// discontinue-flag update; nothing is ever hard-deleted upstream.
	OperationDelete OperationKind = "delete"
)

// Default retry configuration
const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = time.Second
)

// maxBackoff caps the exponential backoff between attempts
const maxBackoff = 30 * time.Minute

// ErrItemNotFound is returned when a queue item does not exist
var ErrItemNotFound = shared.NewDomainError("QUEUE_ITEM_NOT_FOUND", "Write queue item not found")

// Item is one durable unit of outbound work: pending → processing →
// completed | pending(retry) | failed. Failed is terminal (dead letter)
// and requires explicit user action to re-enqueue.
type Item struct {
	ID             uuid.UUID
	OrgID          uuid.UUID
	ModificationID uuid.UUID
	RecordID       uuid.UUID
	EntityType     string
	ExternalID     string
	Operation      OperationKind
	Payload        shared.Document
	Status         ItemStatus
	Priority       int
	RetryCount     int
	MaxRetries     int
	LastError      string
	ConflictID     *uuid.UUID
	NextAttemptAt  *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewItem enqueues outbound work for a modification
func NewItem(orgID, modificationID, recordID uuid.UUID, entityType, externalID string, op OperationKind, payload shared.Document) *Item {
	now := time.Now()
	return &Item{
		ID:             uuid.New(),
		OrgID:          orgID,
		ModificationID: modificationID,
		RecordID:       recordID,
		EntityType:     entityType,
		ExternalID:     externalID,
		Operation:      op,
		Payload:        payload,
		Status:         ItemStatusPending,
		MaxRetries:     DefaultMaxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MarkProcessing claims the item for the current run
func (i *Item) MarkProcessing() error {
	if i.Status != ItemStatusPending {
		return errors.New("can only mark pending items as processing")
	}
	i.Status = ItemStatusProcessing
	i.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted records a successful write-back
func (i *Item) MarkCompleted() {
	now := time.Now()
	i.Status = ItemStatusCompleted
	i.CompletedAt = &now
	i.UpdatedAt = now
}

// MarkFailed records a retryable failure. The item is rescheduled with
// exponential backoff until retries are exhausted, then moves to the
// terminal failed state.
func (i *Item) MarkFailed(errMsg string) {
	i.RetryCount++
	i.LastError = errMsg
	i.UpdatedAt = time.Now()

	if i.RetryCount >= i.MaxRetries {
		i.Status = ItemStatusFailed
		i.NextAttemptAt = nil
		return
	}

	i.Status = ItemStatusPending
	backoff := DefaultBaseBackoff * time.Duration(1<<uint(i.RetryCount))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	next := time.Now().Add(backoff)
	i.NextAttemptAt = &next
}

// MarkFatal moves the item straight to the terminal failed state without
// consuming further retries. Used for non-retryable upstream errors.
func (i *Item) MarkFatal(errMsg string) {
	i.Status = ItemStatusFailed
	i.LastError = errMsg
	i.NextAttemptAt = nil
	i.UpdatedAt = time.Now()
}

// MarkConflicted parks the item on a detected conflict. The retry budget
// is not consumed; the item waits for conflict resolution.
func (i *Item) MarkConflicted(conflictID uuid.UUID) {
	i.Status = ItemStatusFailed
	i.ConflictID = &conflictID
	i.LastError = "version conflict detected"
	i.NextAttemptAt = nil
	i.UpdatedAt = time.Now()
}

// ResetForRetry re-enqueues a dead-letter item with a fresh retry budget
func (i *Item) ResetForRetry() error {
	if i.Status != ItemStatusFailed {
		return errors.New("can only retry failed items")
	}
	i.Status = ItemStatusPending
	i.RetryCount = 0
	i.LastError = ""
	i.ConflictID = nil
	i.NextAttemptAt = nil
	i.UpdatedAt = time.Now()
	return nil
}

// IsDead returns true for items in the terminal failed state
func (i *Item) IsDead() bool {
	return i.Status == ItemStatusFailed
}

// Repository defines persistence for the write queue
type Repository interface {
	// Save persists one or more items
	Save(ctx context.Context, items ...*Item) error
	// FindByID returns an item by ID within an organization
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Item, error)
	// FindDue returns pending items whose next attempt time has passed
	// (or was never set), ordered by priority descending then age, up to
	// limit, across all organizations
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Item, error)
	// MarkProcessing atomically claims the given items and returns the
	// ones actually claimed
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*Item, error)
	// Update updates an existing item
	Update(ctx context.Context, item *Item) error
	// FindDead lists dead-letter items for an organization with pagination
	FindDead(ctx context.Context, orgID uuid.UUID, page, pageSize int) ([]*Item, int64, error)
	// FindByModification returns the most recent item for a modification
	FindByModification(ctx context.Context, modificationID uuid.UUID) (*Item, error)
	// CountByStatus returns item counts per status for an organization
	CountByStatus(ctx context.Context, orgID uuid.UUID) (map[ItemStatus]int64, error)
}
