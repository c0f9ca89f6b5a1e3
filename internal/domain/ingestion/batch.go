package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncMode selects between a full copy and a cursor-based delta pull
type SyncMode string

const (
	SyncModeFull  SyncMode = "full"
	SyncModeDelta SyncMode = "delta"
)

// IsValid returns true if the mode is a known sync mode
func (m SyncMode) IsValid() bool {
	return m == SyncModeFull || m == SyncModeDelta
}

// BatchStatus is the lifecycle state of one ingestion run
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusPartial   BatchStatus = "partial"
	BatchStatusFailed    BatchStatus = "failed"
)

// CursorType selects how delta cursors are computed for an endpoint
type CursorType string

const (
	CursorTypeTimestamp CursorType = "timestamp"
	CursorTypeID        CursorType = "id"
)

// IngestBatch is the metadata of one ingestion run. Partial progress is
// preserved on failure: chunks written before the failure stay in the raw
// layer and the batch records how far it got.
type IngestBatch struct {
	ID          uuid.UUID
	OrgID       uuid.UUID
	Endpoint    string
	EntityType  string
	Mode        SyncMode
	Status      BatchStatus
	RecordCount int
	Fingerprint *SchemaFingerprint
	DriftAlert  string
	Cursor      string
	Errors      []string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewIngestBatch starts a batch for an endpoint
func NewIngestBatch(orgID uuid.UUID, endpoint, entityType string, mode SyncMode) (*IngestBatch, error) {
	if orgID == uuid.Nil {
		return nil, ErrInvalidOrgID
	}
	if endpoint == "" {
		return nil, ErrInvalidEndpoint
	}
	if !mode.IsValid() {
		return nil, ErrInvalidSyncMode
	}
	return &IngestBatch{
		ID:         uuid.New(),
		OrgID:      orgID,
		Endpoint:   endpoint,
		EntityType: entityType,
		Mode:       mode,
		Status:     BatchStatusRunning,
		StartedAt:  time.Now(),
	}, nil
}

// Complete marks the batch as finished. A batch that collected errors but
// still wrote records completes as partial.
func (b *IngestBatch) Complete(recordCount int) error {
	if b.Status != BatchStatusRunning {
		return ErrBatchAlreadyComplete
	}
	now := time.Now()
	b.RecordCount = recordCount
	b.CompletedAt = &now
	if len(b.Errors) > 0 {
		b.Status = BatchStatusPartial
	} else {
		b.Status = BatchStatusCompleted
	}
	return nil
}

// Fail marks the batch as failed, keeping whatever progress was written
func (b *IngestBatch) Fail(recordCount int, errMsg string) {
	now := time.Now()
	b.RecordCount = recordCount
	b.CompletedAt = &now
	b.Status = BatchStatusFailed
	b.Errors = append(b.Errors, errMsg)
}

// RecordError collects a non-fatal error on the batch
func (b *IngestBatch) RecordError(errMsg string) {
	b.Errors = append(b.Errors, errMsg)
}

// Succeeded returns true for batches usable as a delta-cursor seed
func (b *IngestBatch) Succeeded() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusPartial
}

// IngestBatchRepository defines persistence for batch metadata
type IngestBatchRepository interface {
	// Save creates or updates a batch
	Save(ctx context.Context, batch *IngestBatch) error
	// FindByID returns a batch by ID within an organization
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*IngestBatch, error)
	// FindLastSucceeded returns the most recent completed or partial batch
	// for an endpoint, or ErrBatchNotFound
	FindLastSucceeded(ctx context.Context, orgID uuid.UUID, endpoint string) (*IngestBatch, error)
	// FindAll lists batches for an organization, newest first
	FindAll(ctx context.Context, orgID uuid.UUID, limit int) ([]*IngestBatch, error)
}

// EndpointConfig describes one source-system endpoint: which entity it
// serves and how its delta cursor is computed.
type EndpointConfig struct {
	Endpoint    string
	EntityType  string
	CursorType  CursorType
	CursorField string
	PageSize    int
}
