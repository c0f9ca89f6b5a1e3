package conflict

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/shared"
)

// Sentinel errors for the conflict domain
var (
	ErrConflictNotFound   = shared.NewDomainError("CONFLICT_NOT_FOUND", "Sync conflict not found")
	ErrAlreadyResolved    = shared.NewDomainError("CONFLICT_ALREADY_RESOLVED", "Sync conflict is already resolved")
	ErrInvalidStrategy    = shared.NewDomainError("CONFLICT_INVALID_STRATEGY", "Unknown resolution strategy")
	ErrMergedDataRequired = shared.NewDomainError("CONFLICT_MERGED_DATA_REQUIRED", "Merge strategy requires merged data")
)

// ResolutionStrategy selects how a conflict is resolved
type ResolutionStrategy string

const (
	// StrategyUseLocal keeps the user's delta and re-queues it at the
	// mirror's current version
	StrategyUseLocal ResolutionStrategy = "use_local"
	// StrategyUseSource discards the delta; the upstream state wins
	StrategyUseSource ResolutionStrategy = "use_source"
	// StrategyMerge replaces the delta with a caller-supplied merged
	// payload and re-queues it
	StrategyMerge ResolutionStrategy = "merge"
)

// IsValid returns true for a known strategy
func (s ResolutionStrategy) IsValid() bool {
	switch s {
	case StrategyUseLocal, StrategyUseSource, StrategyMerge:
		return true
	default:
		return false
	}
}

// ConflictStatus is the resolution state of a conflict
type ConflictStatus string

const (
	ConflictStatusUnresolved ConflictStatus = "unresolved"
	ConflictStatusResolved   ConflictStatus = "resolved"
)

// SyncConflict records an overlap between a user's pending delta and an
// upstream change made since the delta's base version. At most one
// unresolved conflict exists per modification.
type SyncConflict struct {
	ID             uuid.UUID
	OrgID          uuid.UUID
	ModificationID uuid.UUID
	RecordID       uuid.UUID
	BaseVersion    int64
	MirrorVersion  int64
	LocalDelta     shared.Document
	SourceDocument shared.Document
	ConflictFields []string
	Status         ConflictStatus
	Strategy       ResolutionStrategy
	MergedResult   shared.Document
	DetectedAt     time.Time
	ResolvedAt     *time.Time
}

// NewSyncConflict creates an unresolved conflict holding both sides' data
func NewSyncConflict(orgID, modificationID, recordID uuid.UUID, baseVersion, mirrorVersion int64, localDelta, sourceDoc shared.Document, fields []string) *SyncConflict {
	return &SyncConflict{
		ID:             uuid.New(),
		OrgID:          orgID,
		ModificationID: modificationID,
		RecordID:       recordID,
		BaseVersion:    baseVersion,
		MirrorVersion:  mirrorVersion,
		LocalDelta:     localDelta,
		SourceDocument: sourceDoc,
		ConflictFields: fields,
		Status:         ConflictStatusUnresolved,
		DetectedAt:     time.Now(),
	}
}

// Resolve records the chosen strategy and, for merges, the merged payload
func (c *SyncConflict) Resolve(strategy ResolutionStrategy, mergedData shared.Document) error {
	if c.Status == ConflictStatusResolved {
		return ErrAlreadyResolved
	}
	if !strategy.IsValid() {
		return ErrInvalidStrategy
	}
	if strategy == StrategyMerge && len(mergedData) == 0 {
		return ErrMergedDataRequired
	}
	now := time.Now()
	c.Status = ConflictStatusResolved
	c.Strategy = strategy
	c.MergedResult = mergedData
	c.ResolvedAt = &now
	return nil
}

// DetectionResult is the outcome of a conflict check
type DetectionResult struct {
	HasConflict  bool
	CanAutoMerge bool
	Conflict     *SyncConflict
}

// ConflictFilter defines filter criteria for conflict listings
type ConflictFilter struct {
	Status   *ConflictStatus
	RecordID *uuid.UUID
	Page     int
	PageSize int
}

// ConflictRepository defines persistence for sync conflicts
type ConflictRepository interface {
	// Save creates or updates a conflict
	Save(ctx context.Context, conflict *SyncConflict) error
	// FindByID returns a conflict by ID within an organization
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*SyncConflict, error)
	// FindUnresolvedByModification returns the unresolved conflict of a
	// modification, or ErrConflictNotFound
	FindUnresolvedByModification(ctx context.Context, modificationID uuid.UUID) (*SyncConflict, error)
	// FindAll lists conflicts matching the filter
	FindAll(ctx context.Context, orgID uuid.UUID, filter ConflictFilter) ([]*SyncConflict, int64, error)
}
