package mirror

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/shared"
)

// ModificationStatus is the sync lifecycle of a pending edit
type ModificationStatus string

const (
	ModificationStatusModified    ModificationStatus = "modified"
	ModificationStatusPendingSync ModificationStatus = "pending_sync"
	ModificationStatusSynced      ModificationStatus = "synced"
	ModificationStatusSyncError   ModificationStatus = "sync_error"
)

// Modification is a user's pending edit against a mirror record: a
// changed-fields-only delta plus the mirror version it was computed
// against. At most one live modification exists per (user, record) pair.
type Modification struct {
	ID          uuid.UUID
	OrgID       uuid.UUID
	UserID      uuid.UUID
	RecordID    uuid.UUID
	Delta       shared.Document
	BaseVersion int64
	Status      ModificationStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewModification stages an edit against a record at its current version
func NewModification(orgID, userID, recordID uuid.UUID, delta shared.Document, baseVersion int64) (*Modification, error) {
	if len(delta) == 0 {
		return nil, ErrEmptyDelta
	}
	now := time.Now()
	return &Modification{
		ID:          uuid.New(),
		OrgID:       orgID,
		UserID:      userID,
		RecordID:    recordID,
		Delta:       delta,
		BaseVersion: baseVersion,
		Status:      ModificationStatusModified,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Amend merges further edits into an existing live modification
func (m *Modification) Amend(delta shared.Document) error {
	if len(delta) == 0 {
		return ErrEmptyDelta
	}
	m.Delta = m.Delta.Overlay(delta)
	if m.Status == ModificationStatusSyncError {
		m.Status = ModificationStatusModified
	}
	m.UpdatedAt = time.Now()
	return nil
}

// ChangedFields returns the field names this modification touches
func (m *Modification) ChangedFields() []string {
	return m.Delta.Keys()
}

// MarkPendingSync moves the edit into the write queue lifecycle
func (m *Modification) MarkPendingSync() {
	m.Status = ModificationStatusPendingSync
	m.UpdatedAt = time.Now()
}

// MarkSynced records a successful commit to the source system
func (m *Modification) MarkSynced(version int64) {
	m.Status = ModificationStatusSynced
	m.BaseVersion = version
	m.UpdatedAt = time.Now()
}

// MarkSyncError records a terminal push failure
func (m *Modification) MarkSyncError() {
	m.Status = ModificationStatusSyncError
	m.UpdatedAt = time.Now()
}

// Rebase advances the base version after conflict resolution so the same
// conflict is not detected again
func (m *Modification) Rebase(version int64, delta shared.Document) {
	m.BaseVersion = version
	if delta != nil {
		m.Delta = delta
	}
	m.Status = ModificationStatusModified
	m.UpdatedAt = time.Now()
}

// IsLive returns true while the edit is still pending against the mirror
func (m *Modification) IsLive() bool {
	return m.Status == ModificationStatusModified ||
		m.Status == ModificationStatusPendingSync ||
		m.Status == ModificationStatusSyncError
}

// MergedView returns the record's document with the user's live delta
// overlaid. The mirror itself is never mutated, and other users never see
// the delta. A nil modification returns the plain mirror document.
func MergedView(record *MirrorRecord, mod *Modification) shared.Document {
	if mod == nil || !mod.IsLive() {
		return record.Document.Clone()
	}
	return record.Document.Overlay(mod.Delta)
}

// ModificationRepository defines persistence for pending edits
type ModificationRepository interface {
	// Save creates or updates a modification
	Save(ctx context.Context, mod *Modification) error
	// FindByID returns a modification by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Modification, error)
	// FindLive returns the live modification for a (user, record) pair, or
	// ErrModificationNotFound
	FindLive(ctx context.Context, orgID, userID, recordID uuid.UUID) (*Modification, error)
	// FindLiveByUser returns all live modifications of a user
	FindLiveByUser(ctx context.Context, orgID, userID uuid.UUID) ([]*Modification, error)
	// FindLiveByRecords returns live modifications of a user keyed by
	// record ID, for merged list reads
	FindLiveByRecords(ctx context.Context, orgID, userID uuid.UUID, recordIDs []uuid.UUID) (map[uuid.UUID]*Modification, error)
	// Delete removes a modification (successful commit or explicit discard)
	Delete(ctx context.Context, id uuid.UUID) error
}
