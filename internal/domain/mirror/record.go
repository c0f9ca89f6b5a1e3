package mirror

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/shared"
)

// Sentinel errors for the mirror domain
var (
	ErrRecordNotFound       = shared.NewDomainError("MIRROR_RECORD_NOT_FOUND", "Mirror record not found")
	ErrModificationNotFound = shared.NewDomainError("MODIFICATION_NOT_FOUND", "Modification not found")
	ErrVersionNotIncreasing = shared.NewDomainError("MIRROR_VERSION_REGRESSION", "Mirror version can only increase")
	ErrEmptyDelta           = shared.NewDomainError("MODIFICATION_EMPTY_DELTA", "Modification delta must contain at least one field")
	ErrModificationLive     = shared.NewDomainError("MODIFICATION_ALREADY_LIVE", "A live modification already exists for this user and record")
)

// ChangeOrigin records what caused a mirror version bump
type ChangeOrigin string

const (
	ChangeOriginTransform ChangeOrigin = "transform"
	ChangeOriginWriteBack ChangeOrigin = "write_back"
)

// MirrorRecord is the authoritative local snapshot of one business entity.
// Version increases monotonically; it is bumped only by the transformation
// service and by successful write-backs, never by request handlers.
type MirrorRecord struct {
	ID            uuid.UUID
	OrgID         uuid.UUID
	EntityType    string
	ExternalID    string
	Version       int64
	SourceVersion string
	Document      shared.Document

	// Scalar fields extracted from the document for query performance.
	// Kept in sync with Document by the transformation service.
	Name   string
	Status string
	Amount float64

	Discontinued   bool
	LastSyncedAt   time.Time
	RawRecordID    uuid.UUID
	RulesetVersion int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewMirrorRecord creates a mirror record at version 1
func NewMirrorRecord(orgID uuid.UUID, entityType, externalID string, doc shared.Document) *MirrorRecord {
	now := time.Now()
	return &MirrorRecord{
		ID:           uuid.New(),
		OrgID:        orgID,
		EntityType:   entityType,
		ExternalID:   externalID,
		Version:      1,
		Document:     doc,
		LastSyncedAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ApplyUpstream replaces the document with a freshly transformed one and
// bumps the version. The caller archives the previous state first.
func (r *MirrorRecord) ApplyUpstream(doc shared.Document, sourceVersion string) {
	r.Document = doc
	r.SourceVersion = sourceVersion
	r.Version++
	r.Discontinued = false
	r.LastSyncedAt = time.Now()
	r.UpdatedAt = r.LastSyncedAt
}

// ApplyDelta overlays a modification's delta onto the document and bumps
// the version. Used only after a successful write to the source system.
func (r *MirrorRecord) ApplyDelta(delta shared.Document, sourceVersion string) {
	r.Document = r.Document.Overlay(delta)
	if sourceVersion != "" {
		r.SourceVersion = sourceVersion
	}
	r.Version++
	r.LastSyncedAt = time.Now()
	r.UpdatedAt = r.LastSyncedAt
}

// MarkDiscontinued soft-removes a record that a full sync no longer saw.
// The record and its history are preserved.
func (r *MirrorRecord) MarkDiscontinued() {
	r.Discontinued = true
	r.Version++
	r.UpdatedAt = time.Now()
}

// Snapshot captures the record's current state as a history entry
func (r *MirrorRecord) Snapshot(origin ChangeOrigin) *MirrorHistory {
	return &MirrorHistory{
		ID:            uuid.New(),
		OrgID:         r.OrgID,
		RecordID:      r.ID,
		Version:       r.Version,
		SourceVersion: r.SourceVersion,
		Document:      r.Document.Clone(),
		Origin:        origin,
		ArchivedAt:    time.Now(),
	}
}

// MirrorHistory is an append-only snapshot of a mirror record taken
// immediately before each version bump
type MirrorHistory struct {
	ID            uuid.UUID
	OrgID         uuid.UUID
	RecordID      uuid.UUID
	Version       int64
	SourceVersion string
	Document      shared.Document
	Origin        ChangeOrigin
	ArchivedAt    time.Time
}

// RecordFilter defines filter criteria for mirror reads
type RecordFilter struct {
	EntityType   string
	Status       string
	Search       string
	Discontinued *bool
	Page         int
	PageSize     int
}

// MirrorRepository defines persistence for the mirror layer
type MirrorRepository interface {
	// Save creates or updates a mirror record
	Save(ctx context.Context, record *MirrorRecord) error
	// FindByID returns a record by ID within an organization
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*MirrorRecord, error)
	// FindByExternalID returns a record by its source-system identity
	FindByExternalID(ctx context.Context, orgID uuid.UUID, entityType, externalID string) (*MirrorRecord, error)
	// FindAll lists records matching the filter
	FindAll(ctx context.Context, orgID uuid.UUID, filter RecordFilter) ([]*MirrorRecord, int64, error)
	// MarkOrphans flags every record of the entity type not touched by the
	// given batch as discontinued and returns how many were flagged
	MarkOrphans(ctx context.Context, orgID uuid.UUID, entityType string, batchID uuid.UUID) (int64, error)
}

// HistoryRepository defines persistence for mirror history snapshots
type HistoryRepository interface {
	// Save appends a snapshot
	Save(ctx context.Context, snapshot *MirrorHistory) error
	// FindBetween returns snapshots of a record with version in
	// [fromVersion, toVersion), ordered by version ascending. Snapshots
	// carry the pre-bump version, so the snapshot labeled N is the
	// document state at version N.
	FindBetween(ctx context.Context, recordID uuid.UUID, fromVersion, toVersion int64) ([]*MirrorHistory, error)
}
