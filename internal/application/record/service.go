package record

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/writequeue"
)

// ErrNothingToSync is returned when a sync is requested without a live edit
var ErrNothingToSync = shared.NewDomainError("SYNC_NOTHING_PENDING", "No pending modification to sync")

// MergedRecord is a mirror record as one user sees it: the shared document
// with that user's live delta overlaid.
type MergedRecord struct {
	Record       *mirror.MirrorRecord
	Document     shared.Document
	Modification *mirror.Modification
}

// StagedEdit is one entry of a batch staging request
type StagedEdit struct {
	RecordID uuid.UUID
	Delta    shared.Document
}

// StageOutcome is the per-record outcome of a batch staging request
type StageOutcome struct {
	RecordID     uuid.UUID
	Modification *mirror.Modification
	Err          error
}

// Service serves merged reads and manages the lifecycle of user edits
// against the mirror. The mirror itself is never written here; edits live
// as deltas until a successful write-back applies them.
type Service struct {
	mirrorRepo mirror.MirrorRepository
	modRepo    mirror.ModificationRepository
	queueRepo  writequeue.Repository
	publisher  shared.EventPublisher
	logger     *zap.Logger
}

// NewService creates a record service
func NewService(
	mirrorRepo mirror.MirrorRepository,
	modRepo mirror.ModificationRepository,
	queueRepo writequeue.Repository,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		mirrorRepo: mirrorRepo,
		modRepo:    modRepo,
		queueRepo:  queueRepo,
		publisher:  publisher,
		logger:     logger,
	}
}

// GetMerged returns one record with the user's live delta overlaid
func (s *Service) GetMerged(ctx context.Context, orgID, userID, recordID uuid.UUID) (*MergedRecord, error) {
	record, err := s.mirrorRepo.FindByID(ctx, orgID, recordID)
	if err != nil {
		return nil, err
	}

	mod, err := s.modRepo.FindLive(ctx, orgID, userID, recordID)
	if err != nil {
		if !errors.Is(err, mirror.ErrModificationNotFound) {
			return nil, err
		}
		mod = nil
	}

	return &MergedRecord{
		Record:       record,
		Document:     mirror.MergedView(record, mod),
		Modification: mod,
	}, nil
}

// ListMerged lists records matching the filter, each with the user's live
// delta overlaid. Other users' deltas are never visible.
func (s *Service) ListMerged(ctx context.Context, orgID, userID uuid.UUID, filter mirror.RecordFilter) ([]*MergedRecord, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	records, total, err := s.mirrorRepo.FindAll(ctx, orgID, filter)
	if err != nil {
		return nil, 0, err
	}

	recordIDs := make([]uuid.UUID, len(records))
	for i, r := range records {
		recordIDs[i] = r.ID
	}
	mods, err := s.modRepo.FindLiveByRecords(ctx, orgID, userID, recordIDs)
	if err != nil {
		return nil, 0, err
	}

	merged := make([]*MergedRecord, len(records))
	for i, r := range records {
		mod := mods[r.ID]
		merged[i] = &MergedRecord{
			Record:       r,
			Document:     mirror.MergedView(r, mod),
			Modification: mod,
		}
	}
	return merged, total, nil
}

// Stage stages an edit against a record. A live modification for the same
// (user, record) pair is amended rather than duplicated; the base version
// of an amended edit is kept so conflict detection still covers the full
// window since the first staging.
func (s *Service) Stage(ctx context.Context, orgID, userID, recordID uuid.UUID, delta shared.Document) (*mirror.Modification, error) {
	record, err := s.mirrorRepo.FindByID(ctx, orgID, recordID)
	if err != nil {
		return nil, err
	}

	existing, err := s.modRepo.FindLive(ctx, orgID, userID, recordID)
	switch {
	case err == nil:
		if err := existing.Amend(delta); err != nil {
			return nil, err
		}
		if err := s.modRepo.Save(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, mirror.ErrModificationNotFound):
		mod, err := mirror.NewModification(orgID, userID, recordID, delta.Clone(), record.Version)
		if err != nil {
			return nil, err
		}
		if err := s.modRepo.Save(ctx, mod); err != nil {
			return nil, err
		}
		return mod, nil
	default:
		return nil, err
	}
}

// StageBatch stages many edits in one call. Each edit succeeds or fails on
// its own; one bad record never blocks its siblings.
func (s *Service) StageBatch(ctx context.Context, orgID, userID uuid.UUID, edits []StagedEdit) []StageOutcome {
	outcomes := make([]StageOutcome, len(edits))
	for i, edit := range edits {
		mod, err := s.Stage(ctx, orgID, userID, edit.RecordID, edit.Delta)
		outcomes[i] = StageOutcome{RecordID: edit.RecordID, Modification: mod, Err: err}
	}
	return outcomes
}

// Discard drops the user's live edit for a record
func (s *Service) Discard(ctx context.Context, orgID, userID, recordID uuid.UUID) error {
	mod, err := s.modRepo.FindLive(ctx, orgID, userID, recordID)
	if err != nil {
		return err
	}
	return s.modRepo.Delete(ctx, mod.ID)
}

// ListPending lists the user's live modifications
func (s *Service) ListPending(ctx context.Context, orgID, userID uuid.UUID) ([]*mirror.Modification, error) {
	return s.modRepo.FindLiveByUser(ctx, orgID, userID)
}

// RequestSync enqueues the user's live edit for write-back. Idempotent: an
// item already pending or processing for the modification is returned as
// is instead of enqueuing a duplicate.
func (s *Service) RequestSync(ctx context.Context, orgID, userID, recordID uuid.UUID) (*writequeue.Item, error) {
	mod, err := s.modRepo.FindLive(ctx, orgID, userID, recordID)
	if err != nil {
		if errors.Is(err, mirror.ErrModificationNotFound) {
			return nil, ErrNothingToSync
		}
		return nil, err
	}

	if existing, err := s.queueRepo.FindByModification(ctx, mod.ID); err == nil {
		if existing.Status == writequeue.ItemStatusPending || existing.Status == writequeue.ItemStatusProcessing {
			return existing, nil
		}
	} else if !errors.Is(err, writequeue.ErrItemNotFound) {
		return nil, err
	}

	record, err := s.mirrorRepo.FindByID(ctx, orgID, recordID)
	if err != nil {
		return nil, err
	}

	mod.MarkPendingSync()
	if err := s.modRepo.Save(ctx, mod); err != nil {
		return nil, err
	}

	item := writequeue.NewItem(orgID, mod.ID, record.ID, record.EntityType, record.ExternalID,
		writequeue.OperationUpdate, mod.Delta.Clone())
	if err := s.queueRepo.Save(ctx, item); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, writequeue.NewItemStatusEvent(writequeue.EventTypeItemQueued, item)); err != nil {
		s.logger.Warn("failed to publish queue event", zap.Error(err))
	}

	s.logger.Info("sync requested",
		zap.String("record_id", record.ID.String()),
		zap.String("modification_id", mod.ID.String()),
		zap.String("item_id", item.ID.String()),
	)
	return item, nil
}
