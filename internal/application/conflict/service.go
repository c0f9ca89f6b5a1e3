package conflict

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syncline/backend/internal/domain/conflict"
	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/writequeue"
)

// Service detects and resolves conflicts between pending user edits and
// upstream changes that landed in the mirror after the edit was staged.
type Service struct {
	modRepo      mirror.ModificationRepository
	mirrorRepo   mirror.MirrorRepository
	historyRepo  mirror.HistoryRepository
	conflictRepo conflict.ConflictRepository
	queueRepo    writequeue.Repository
	publisher    shared.EventPublisher
	logger       *zap.Logger
}

// NewService creates a conflict service
func NewService(
	modRepo mirror.ModificationRepository,
	mirrorRepo mirror.MirrorRepository,
	historyRepo mirror.HistoryRepository,
	conflictRepo conflict.ConflictRepository,
	queueRepo writequeue.Repository,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		modRepo:      modRepo,
		mirrorRepo:   mirrorRepo,
		historyRepo:  historyRepo,
		conflictRepo: conflictRepo,
		queueRepo:    queueRepo,
		publisher:    publisher,
		logger:       logger,
	}
}

// Detect checks a modification against the mirror's current state.
//
// Fast path: a base version at or ahead of the mirror means nothing changed
// upstream. Otherwise the upstream-changed field set is reconstructed from
// history (state at the base version vs the current document) and
// intersected with the modification's own fields. A disjoint overlap is
// auto-merged by rebasing the modification onto the current version; an
// overlap opens (or returns the existing) unresolved conflict.
func (s *Service) Detect(ctx context.Context, modificationID uuid.UUID) (*conflict.DetectionResult, error) {
	mod, err := s.modRepo.FindByID(ctx, modificationID)
	if err != nil {
		return nil, err
	}
	record, err := s.mirrorRepo.FindByID(ctx, mod.OrgID, mod.RecordID)
	if err != nil {
		return nil, err
	}

	if mod.BaseVersion >= record.Version {
		return &conflict.DetectionResult{}, nil
	}

	// At most one unresolved conflict per modification
	if existing, err := s.conflictRepo.FindUnresolvedByModification(ctx, modificationID); err == nil {
		return &conflict.DetectionResult{HasConflict: true, Conflict: existing}, nil
	} else if !errors.Is(err, conflict.ErrConflictNotFound) {
		return nil, err
	}

	upstreamChanged, err := s.upstreamChangedFields(ctx, mod, record)
	if err != nil {
		return nil, err
	}

	overlap := shared.Intersect(mod.ChangedFields(), upstreamChanged)
	if len(overlap) == 0 {
		// Disjoint fields: rebase the edit onto the current version so the
		// same gap is not re-examined on the next check
		mod.Rebase(record.Version, nil)
		if err := s.modRepo.Save(ctx, mod); err != nil {
			return nil, err
		}
		return &conflict.DetectionResult{CanAutoMerge: true}, nil
	}

	c := conflict.NewSyncConflict(mod.OrgID, mod.ID, record.ID, mod.BaseVersion, record.Version,
		mod.Delta.Clone(), record.Document.Clone(), overlap)
	if err := s.conflictRepo.Save(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("conflict detected",
		zap.String("modification_id", mod.ID.String()),
		zap.String("record_id", record.ID.String()),
		zap.Int64("base_version", mod.BaseVersion),
		zap.Int64("mirror_version", record.Version),
		zap.Strings("fields", overlap),
	)
	return &conflict.DetectionResult{HasConflict: true, Conflict: c}, nil
}

// upstreamChangedFields diffs the record's state at the modification's base
// version against its current document. With no history to reconstruct the
// base state the whole document is treated as changed.
func (s *Service) upstreamChangedFields(ctx context.Context, mod *mirror.Modification, record *mirror.MirrorRecord) ([]string, error) {
	snapshots, err := s.historyRepo.FindBetween(ctx, record.ID, mod.BaseVersion, record.Version)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return record.Document.Keys(), nil
	}
	// Snapshots are pre-bump: the oldest one in the window is the state the
	// modification was staged against
	return shared.ChangedFields(snapshots[0].Document, record.Document), nil
}

// Resolve applies a resolution strategy to an unresolved conflict. Every
// strategy advances the modification past the conflicting version so the
// same conflict is never detected twice, and the queue item parked on the
// conflict is voided so a manual retry cannot replay the superseded delta.
func (s *Service) Resolve(ctx context.Context, orgID, conflictID uuid.UUID, strategy conflict.ResolutionStrategy, mergedData shared.Document) (*conflict.SyncConflict, error) {
	c, err := s.conflictRepo.FindByID(ctx, orgID, conflictID)
	if err != nil {
		return nil, err
	}
	if err := c.Resolve(strategy, mergedData); err != nil {
		return nil, err
	}

	mod, err := s.modRepo.FindByID(ctx, c.ModificationID)
	if err != nil {
		return nil, err
	}
	record, err := s.mirrorRepo.FindByID(ctx, mod.OrgID, mod.RecordID)
	if err != nil {
		return nil, err
	}

	switch strategy {
	case conflict.StrategyUseSource:
		// Upstream wins: the edit is dropped and the modification is settled
		// at the mirror's current version
		mod.MarkSynced(record.Version)
		if err := s.modRepo.Save(ctx, mod); err != nil {
			return nil, err
		}
	case conflict.StrategyUseLocal:
		mod.Rebase(record.Version, nil)
		if err := s.requeue(ctx, mod, record); err != nil {
			return nil, err
		}
	case conflict.StrategyMerge:
		mod.Rebase(record.Version, mergedData)
		if err := s.requeue(ctx, mod, record); err != nil {
			return nil, err
		}
	}

	s.voidParkedItem(ctx, c)

	if err := s.conflictRepo.Save(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("conflict resolved",
		zap.String("conflict_id", c.ID.String()),
		zap.String("strategy", string(strategy)),
	)
	return c, nil
}

// requeue stages a rebased modification back onto the write queue
func (s *Service) requeue(ctx context.Context, mod *mirror.Modification, record *mirror.MirrorRecord) error {
	mod.MarkPendingSync()
	if err := s.modRepo.Save(ctx, mod); err != nil {
		return err
	}

	item := writequeue.NewItem(mod.OrgID, mod.ID, record.ID, record.EntityType, record.ExternalID,
		writequeue.OperationUpdate, mod.Delta.Clone())
	if err := s.queueRepo.Save(ctx, item); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, writequeue.NewItemStatusEvent(writequeue.EventTypeItemQueued, item)); err != nil {
		s.logger.Warn("failed to publish queue event", zap.Error(err))
	}
	return nil
}

// voidParkedItem completes the queue item a conflict parked in the dead
// letter state. Use-local and merge resolutions enqueue a fresh item for
// the rebased delta; the parked one would only replay the stale payload.
func (s *Service) voidParkedItem(ctx context.Context, c *conflict.SyncConflict) {
	item, err := s.queueRepo.FindByModification(ctx, c.ModificationID)
	if err != nil {
		return
	}
	if !item.IsDead() || item.ConflictID == nil || *item.ConflictID != c.ID {
		return
	}
	item.MarkCompleted()
	if err := s.queueRepo.Update(ctx, item); err != nil {
		s.logger.Error("failed to void parked queue item",
			zap.String("item_id", item.ID.String()), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, writequeue.NewItemStatusEvent(writequeue.EventTypeItemCompleted, item)); err != nil {
		s.logger.Warn("failed to publish queue event", zap.Error(err))
	}
}

// SaveDetected persists a conflict detected outside this service, such as
// a version conflict reported by the source system during write-back
func (s *Service) SaveDetected(ctx context.Context, c *conflict.SyncConflict) error {
	return s.conflictRepo.Save(ctx, c)
}

// Get returns a conflict by ID
func (s *Service) Get(ctx context.Context, orgID, conflictID uuid.UUID) (*conflict.SyncConflict, error) {
	return s.conflictRepo.FindByID(ctx, orgID, conflictID)
}

// List lists conflicts for an organization
func (s *Service) List(ctx context.Context, orgID uuid.UUID, filter conflict.ConflictFilter) ([]*conflict.SyncConflict, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	return s.conflictRepo.FindAll(ctx, orgID, filter)
}
