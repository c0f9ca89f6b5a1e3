package writesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syncline/backend/internal/domain/conflict"
	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/writequeue"
	"github.com/syncline/backend/internal/infrastructure/config"
	"github.com/syncline/backend/internal/infrastructure/sourceapi"
)

// Writer is the record-level write side of the source system API
type Writer interface {
	Update(ctx context.Context, entityType, externalID string, payload shared.Document, version string) (*sourceapi.WriteResult, error)
	Discontinue(ctx context.Context, entityType, externalID, version string) (*sourceapi.WriteResult, error)
}

// WriterFactory returns the write client for an organization. One client is
// created per organization per run so credentials and rate budgets stay
// org-scoped.
type WriterFactory func(orgID uuid.UUID) Writer

// CommitStore applies a successful write-back atomically
type CommitStore interface {
	CommitWrite(ctx context.Context, snapshot *mirror.MirrorHistory, record *mirror.MirrorRecord, mod *mirror.Modification, item *writequeue.Item) error
}

// ConflictChecker re-checks a modification for conflicts before a write
// leaves for the source system, and persists conflicts the source system
// reports back. Satisfied by the conflict application service.
type ConflictChecker interface {
	Detect(ctx context.Context, modificationID uuid.UUID) (*conflict.DetectionResult, error)
	SaveDetected(ctx context.Context, c *conflict.SyncConflict) error
}

// RunStats summarizes one worker run
type RunStats struct {
	Claimed    int
	Completed  int
	Retried    int
	Dead       int
	Conflicted int
}

// writeAttempt is validated before any call leaves for the source system
type writeAttempt struct {
	EntityType string          `validate:"required"`
	ExternalID string          `validate:"required"`
	Payload    shared.Document `validate:"required,min=1"`
}

// Service drains the write queue: it claims due items, re-checks conflicts,
// pushes deltas to the source system, and commits the local consequences.
type Service struct {
	queueRepo   writequeue.Repository
	modRepo     mirror.ModificationRepository
	mirrorRepo  mirror.MirrorRepository
	conflictSvc ConflictChecker
	syncLogRepo writequeue.SyncLogRepository
	commitStore CommitStore
	writerFor   WriterFactory
	publisher   shared.EventPublisher
	validate    *validator.Validate
	batchSize   int
	chunkSize   int
	chunkDelay  time.Duration
	logger      *zap.Logger
}

// NewService creates a write sync service
func NewService(
	queueRepo writequeue.Repository,
	modRepo mirror.ModificationRepository,
	mirrorRepo mirror.MirrorRepository,
	conflictSvc ConflictChecker,
	syncLogRepo writequeue.SyncLogRepository,
	commitStore CommitStore,
	writerFor WriterFactory,
	publisher shared.EventPublisher,
	cfg config.WorkerConfig,
	logger *zap.Logger,
) *Service {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 50
	}
	chunkSize := cfg.ChunkSize
	if chunkSize < 1 {
		chunkSize = 5
	}
	return &Service{
		queueRepo:   queueRepo,
		modRepo:     modRepo,
		mirrorRepo:  mirrorRepo,
		conflictSvc: conflictSvc,
		syncLogRepo: syncLogRepo,
		commitStore: commitStore,
		writerFor:   writerFor,
		publisher:   publisher,
		validate:    validator.New(),
		batchSize:   batchSize,
		chunkSize:   chunkSize,
		chunkDelay:  cfg.ChunkDelay,
		logger:      logger,
	}
}

// Run executes one worker pass. Due items are claimed atomically, grouped
// by organization, and each organization's items are pushed in fixed-size
// concurrent chunks with a pause in between. Cancellation is cooperative:
// the run stops between chunks, in-flight writes complete.
func (s *Service) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	due, err := s.queueRepo.FindDue(ctx, time.Now(), s.batchSize)
	if err != nil {
		return stats, err
	}
	if len(due) == 0 {
		return stats, nil
	}

	ids := make([]uuid.UUID, len(due))
	for i, item := range due {
		ids[i] = item.ID
	}
	claimed, err := s.queueRepo.MarkProcessing(ctx, ids)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(claimed)

	byOrg := make(map[uuid.UUID][]*writequeue.Item)
	var orgOrder []uuid.UUID
	for _, item := range claimed {
		if _, seen := byOrg[item.OrgID]; !seen {
			orgOrder = append(orgOrder, item.OrgID)
		}
		byOrg[item.OrgID] = append(byOrg[item.OrgID], item)
	}

	for _, orgID := range orgOrder {
		if err := ctx.Err(); err != nil {
			s.requeueUnprocessed(byOrg[orgID])
			return stats, err
		}
		s.processOrg(ctx, orgID, byOrg[orgID], stats)
	}

	s.logger.Info("write sync run finished",
		zap.Int("claimed", stats.Claimed),
		zap.Int("completed", stats.Completed),
		zap.Int("retried", stats.Retried),
		zap.Int("dead", stats.Dead),
		zap.Int("conflicted", stats.Conflicted),
	)
	return stats, nil
}

// processOrg pushes one organization's items through a shared write client
// in fixed-size concurrent chunks
func (s *Service) processOrg(ctx context.Context, orgID uuid.UUID, items []*writequeue.Item, stats *RunStats) {
	writer := s.writerFor(orgID)

	var mu sync.Mutex
	for start := 0; start < len(items); start += s.chunkSize {
		if err := ctx.Err(); err != nil {
			s.requeueUnprocessed(items[start:])
			return
		}

		end := start + s.chunkSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for _, item := range items[start:end] {
			wg.Add(1)
			go func(item *writequeue.Item) {
				defer wg.Done()
				outcome := s.processItem(ctx, writer, item)
				mu.Lock()
				switch outcome {
				case outcomeCompleted:
					stats.Completed++
				case outcomeRetried:
					stats.Retried++
				case outcomeDead:
					stats.Dead++
				case outcomeConflicted:
					stats.Conflicted++
				}
				mu.Unlock()
			}(item)
		}
		wg.Wait()

		if end < len(items) && s.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				s.requeueUnprocessed(items[end:])
				return
			case <-time.After(s.chunkDelay):
			}
		}
	}
}

// requeueUnprocessed flips claimed-but-unprocessed items back to pending so
// a cancelled run does not strand them in processing
func (s *Service) requeueUnprocessed(items []*writequeue.Item) {
	ctx := context.Background()
	for _, item := range items {
		if item.Status != writequeue.ItemStatusProcessing {
			continue
		}
		item.Status = writequeue.ItemStatusPending
		item.UpdatedAt = time.Now()
		if err := s.queueRepo.Update(ctx, item); err != nil {
			s.logger.Error("failed to requeue claimed item",
				zap.String("item_id", item.ID.String()), zap.Error(err))
		}
	}
}

type itemOutcome int

const (
	outcomeCompleted itemOutcome = iota
	outcomeRetried
	outcomeDead
	outcomeConflicted
	outcomeSkipped
)

// processItem pushes one queue item through conflict re-check, validation,
// the upstream write, and the atomic local commit
func (s *Service) processItem(ctx context.Context, writer Writer, item *writequeue.Item) itemOutcome {
	s.publish(ctx, writequeue.NewItemStatusEvent(writequeue.EventTypeItemProcessing, item))

	// State may have changed since enqueue
	detection, err := s.conflictSvc.Detect(ctx, item.ModificationID)
	if err != nil {
		return s.failItem(ctx, item, 0, "conflict check failed: "+err.Error(), true)
	}
	if detection.HasConflict {
		return s.conflictItem(ctx, item, detection.Conflict)
	}

	mod, err := s.modRepo.FindByID(ctx, item.ModificationID)
	if err != nil {
		return s.failItem(ctx, item, 0, "modification lookup failed: "+err.Error(), false)
	}
	record, err := s.mirrorRepo.FindByID(ctx, item.OrgID, item.RecordID)
	if err != nil {
		return s.failItem(ctx, item, 0, "record lookup failed: "+err.Error(), false)
	}

	if err := s.validate.Struct(writeAttempt{
		EntityType: item.EntityType,
		ExternalID: item.ExternalID,
		Payload:    item.Payload,
	}); err != nil && item.Operation != writequeue.OperationDelete {
		// Validation failures are fatal at the item level only
		return s.failItem(ctx, item, 0, "payload validation failed: "+err.Error(), false)
	}

	var result *sourceapi.WriteResult
	switch item.Operation {
	case writequeue.OperationDelete:
		result, err = writer.Discontinue(ctx, item.EntityType, item.ExternalID, record.SourceVersion)
	default:
		result, err = writer.Update(ctx, item.EntityType, item.ExternalID, item.Payload, record.SourceVersion)
	}
	if err != nil {
		return s.handleWriteError(ctx, item, mod, record, err)
	}

	return s.commitSuccess(ctx, item, mod, record, result)
}

// commitSuccess applies the write-back locally in one transaction
func (s *Service) commitSuccess(ctx context.Context, item *writequeue.Item, mod *mirror.Modification, record *mirror.MirrorRecord, result *sourceapi.WriteResult) itemOutcome {
	snapshot := record.Snapshot(mirror.ChangeOriginWriteBack)
	if item.Operation == writequeue.OperationDelete {
		record.MarkDiscontinued()
		record.SourceVersion = result.NewVersion
	} else {
		record.ApplyDelta(item.Payload, result.NewVersion)
	}
	mod.MarkSynced(record.Version)
	item.MarkCompleted()

	if err := s.commitStore.CommitWrite(ctx, snapshot, record, mod, item); err != nil {
		// The upstream write landed but the local commit did not. Accepted
		// inconsistency: the next ingestion cycle restores convergence.
		s.logger.Error("local commit failed after successful upstream write",
			zap.String("item_id", item.ID.String()),
			zap.String("record_id", record.ID.String()),
			zap.Error(err),
		)
		return s.failItem(ctx, item, 0, "local commit failed: "+err.Error(), true)
	}

	s.writeLog(ctx, item, 200, "write-back committed")
	s.publish(ctx, writequeue.NewItemStatusEvent(writequeue.EventTypeItemCompleted, item))
	return outcomeCompleted
}

// handleWriteError classifies an upstream failure
func (s *Service) handleWriteError(ctx context.Context, item *writequeue.Item, mod *mirror.Modification, record *mirror.MirrorRecord, err error) itemOutcome {
	var conflictErr *sourceapi.VersionConflictError
	if errors.As(err, &conflictErr) {
		c := conflict.NewSyncConflict(item.OrgID, mod.ID, record.ID, mod.BaseVersion, record.Version,
			mod.Delta.Clone(), conflictErr.ServerDocument, conflictErr.ConflictFields)
		if saveErr := s.conflictSvc.SaveDetected(ctx, c); saveErr != nil {
			return s.failItem(ctx, item, 409, "conflict persist failed: "+saveErr.Error(), true)
		}
		s.writeLog(ctx, item, 409, "upstream version conflict")
		return s.conflictItem(ctx, item, c)
	}

	statusCode := 0
	var srcErr *sourceapi.SourceError
	if errors.As(err, &srcErr) {
		statusCode = srcErr.StatusCode
	}
	return s.failItem(ctx, item, statusCode, err.Error(), sourceapi.IsRetryable(err))
}

// failItem applies the retry/dead-letter discipline to a failed item
func (s *Service) failItem(ctx context.Context, item *writequeue.Item, statusCode int, msg string, retryable bool) itemOutcome {
	if retryable {
		item.MarkFailed(msg)
	} else {
		item.MarkFatal(msg)
	}

	if err := s.queueRepo.Update(ctx, item); err != nil {
		s.logger.Error("failed to persist item failure",
			zap.String("item_id", item.ID.String()), zap.Error(err))
	}
	s.writeLog(ctx, item, statusCode, msg)

	if item.IsDead() {
		s.markModificationSyncError(ctx, item)
		s.publish(ctx, writequeue.NewItemStatusEvent(writequeue.EventTypeItemFailed, item))
		s.logger.Warn("queue item moved to dead letter",
			zap.String("item_id", item.ID.String()),
			zap.String("external_id", item.ExternalID),
			zap.Int("retry_count", item.RetryCount),
			zap.Int("upstream_status", statusCode),
			zap.String("error", msg),
		)
		return outcomeDead
	}

	s.publish(ctx, writequeue.NewItemStatusEvent(writequeue.EventTypeItemRetrying, item))
	return outcomeRetried
}

// conflictItem parks an item on a conflict without consuming a retry
func (s *Service) conflictItem(ctx context.Context, item *writequeue.Item, c *conflict.SyncConflict) itemOutcome {
	item.MarkConflicted(c.ID)
	if err := s.queueRepo.Update(ctx, item); err != nil {
		s.logger.Error("failed to persist conflicted item",
			zap.String("item_id", item.ID.String()), zap.Error(err))
	}
	s.publish(ctx, writequeue.NewItemStatusEvent(writequeue.EventTypeItemConflicted, item))
	return outcomeConflicted
}

func (s *Service) markModificationSyncError(ctx context.Context, item *writequeue.Item) {
	mod, err := s.modRepo.FindByID(ctx, item.ModificationID)
	if err != nil {
		return
	}
	mod.MarkSyncError()
	if err := s.modRepo.Save(ctx, mod); err != nil {
		s.logger.Error("failed to mark modification sync error",
			zap.String("modification_id", mod.ID.String()), zap.Error(err))
	}
}

func (s *Service) writeLog(ctx context.Context, item *writequeue.Item, statusCode int, msg string) {
	if err := s.syncLogRepo.Save(ctx, writequeue.NewSyncLog(item, statusCode, msg)); err != nil {
		s.logger.Error("failed to persist sync log",
			zap.String("item_id", item.ID.String()), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, event shared.DomainEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish queue event", zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// Operational surface
// ---------------------------------------------------------------------------

// RetryDead re-enqueues one dead-letter item with a fresh retry budget
func (s *Service) RetryDead(ctx context.Context, orgID, itemID uuid.UUID) (*writequeue.Item, error) {
	item, err := s.queueRepo.FindByID(ctx, orgID, itemID)
	if err != nil {
		return nil, err
	}
	if err := item.ResetForRetry(); err != nil {
		return nil, err
	}
	if err := s.queueRepo.Update(ctx, item); err != nil {
		return nil, err
	}
	s.publish(ctx, writequeue.NewItemStatusEvent(writequeue.EventTypeItemQueued, item))
	return item, nil
}

// ListDead lists dead-letter items for an organization
func (s *Service) ListDead(ctx context.Context, orgID uuid.UUID, page, pageSize int) ([]*writequeue.Item, int64, error) {
	return s.queueRepo.FindDead(ctx, orgID, page, pageSize)
}

// QueueCounts returns item counts per status for an organization
func (s *Service) QueueCounts(ctx context.Context, orgID uuid.UUID) (map[writequeue.ItemStatus]int64, error) {
	return s.queueRepo.CountByStatus(ctx, orgID)
}

// RecentLogs lists recent sync log entries for an organization
func (s *Service) RecentLogs(ctx context.Context, orgID uuid.UUID, limit int) ([]*writequeue.SyncLog, error) {
	if limit < 1 {
		limit = 100
	}
	return s.syncLogRepo.FindRecent(ctx, orgID, limit)
}
