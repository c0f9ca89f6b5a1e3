package ingestion

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/shared"
)

// Sentinel errors for the ingestion domain
var (
	ErrBatchNotFound        = shared.NewDomainError("INGEST_BATCH_NOT_FOUND", "Ingest batch not found")
	ErrInvalidOrgID         = shared.NewDomainError("INGEST_INVALID_ORG", "Organization ID is required")
	ErrInvalidEndpoint      = shared.NewDomainError("INGEST_INVALID_ENDPOINT", "Endpoint is required")
	ErrInvalidSyncMode      = shared.NewDomainError("INGEST_INVALID_MODE", "Sync mode must be full or delta")
	ErrBatchAlreadyComplete = shared.NewDomainError("INGEST_BATCH_COMPLETE", "Ingest batch is already completed")
)

// RawRecord is one ingested source-system record, stored unmodified in the
// raw layer. Raw records are never mutated or deleted; newer ingestion
// batches supersede them.
type RawRecord struct {
	ID          uuid.UUID
	OrgID       uuid.UUID
	BatchID     uuid.UUID
	EntityType  string
	ExternalID  string
	Payload     shared.Document
	Fingerprint string
	IngestedAt  time.Time
}

// NewRawRecord creates a raw record for a batch. The structural fingerprint
// is derived from the payload's own field set.
func NewRawRecord(orgID, batchID uuid.UUID, entityType, externalID string, payload shared.Document) *RawRecord {
	return &RawRecord{
		ID:          uuid.New(),
		OrgID:       orgID,
		BatchID:     batchID,
		EntityType:  entityType,
		ExternalID:  externalID,
		Payload:     payload,
		Fingerprint: StructuralFingerprint(payload),
		IngestedAt:  time.Now(),
	}
}

// StructuralFingerprint returns a stable identifier of a document's
// top-level field set, independent of the field values.
func StructuralFingerprint(doc shared.Document) string {
	fields := doc.Keys()
	sort.Strings(fields)
	return strings.Join(fields, ",")
}

// RawRecordRepository defines persistence for the raw layer
type RawRecordRepository interface {
	// SaveChunk persists a chunk of raw records in one transaction
	SaveChunk(ctx context.Context, records []*RawRecord) error
	// FindByBatch returns raw records for a batch ordered by ID, starting
	// after the given cursor, up to limit. A nil cursor starts at the
	// beginning.
	FindByBatch(ctx context.Context, batchID uuid.UUID, afterID *uuid.UUID, limit int) ([]*RawRecord, error)
	// CountByBatch returns the number of raw records in a batch
	CountByBatch(ctx context.Context, batchID uuid.UUID) (int64, error)
}
