package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/syncline/backend/internal/domain/conflict"
	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/domain/job"
	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/transform"
	"github.com/syncline/backend/internal/domain/writequeue"
	"github.com/syncline/backend/internal/interfaces/http/middleware"
	"github.com/syncline/backend/internal/interfaces/http/router"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestEngine builds a gin engine with the org middleware and the given
// route groups mounted under /api/v1, mirroring the server wiring.
func newTestEngine(groups ...*router.DomainGroup) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.OrgContext())
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	for _, g := range groups {
		r.Register(g)
	}
	r.Setup()
	return engine
}

// MockMirrorRepository implements mirror.MirrorRepository for testing
type MockMirrorRepository struct {
	mock.Mock
}

func (m *MockMirrorRepository) Save(ctx context.Context, record *mirror.MirrorRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockMirrorRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*mirror.MirrorRecord, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.MirrorRecord), args.Error(1)
}

func (m *MockMirrorRepository) FindByExternalID(ctx context.Context, orgID uuid.UUID, entityType, externalID string) (*mirror.MirrorRecord, error) {
	args := m.Called(ctx, orgID, entityType, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.MirrorRecord), args.Error(1)
}

func (m *MockMirrorRepository) FindAll(ctx context.Context, orgID uuid.UUID, filter mirror.RecordFilter) ([]*mirror.MirrorRecord, int64, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*mirror.MirrorRecord), args.Get(1).(int64), args.Error(2)
}

func (m *MockMirrorRepository) MarkOrphans(ctx context.Context, orgID uuid.UUID, entityType string, batchID uuid.UUID) (int64, error) {
	args := m.Called(ctx, orgID, entityType, batchID)
	return args.Get(0).(int64), args.Error(1)
}

// MockHistoryRepository implements mirror.HistoryRepository for testing
type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Save(ctx context.Context, snapshot *mirror.MirrorHistory) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockHistoryRepository) FindBetween(ctx context.Context, recordID uuid.UUID, fromVersion, toVersion int64) ([]*mirror.MirrorHistory, error) {
	args := m.Called(ctx, recordID, fromVersion, toVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*mirror.MirrorHistory), args.Error(1)
}

// MockModificationRepository implements mirror.ModificationRepository for testing
type MockModificationRepository struct {
	mock.Mock
}

func (m *MockModificationRepository) Save(ctx context.Context, mod *mirror.Modification) error {
	args := m.Called(ctx, mod)
	return args.Error(0)
}

func (m *MockModificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*mirror.Modification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.Modification), args.Error(1)
}

func (m *MockModificationRepository) FindLive(ctx context.Context, orgID, userID, recordID uuid.UUID) (*mirror.Modification, error) {
	args := m.Called(ctx, orgID, userID, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mirror.Modification), args.Error(1)
}

func (m *MockModificationRepository) FindLiveByUser(ctx context.Context, orgID, userID uuid.UUID) ([]*mirror.Modification, error) {
	args := m.Called(ctx, orgID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*mirror.Modification), args.Error(1)
}

func (m *MockModificationRepository) FindLiveByRecords(ctx context.Context, orgID, userID uuid.UUID, recordIDs []uuid.UUID) (map[uuid.UUID]*mirror.Modification, error) {
	args := m.Called(ctx, orgID, userID, recordIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*mirror.Modification), args.Error(1)
}

func (m *MockModificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockQueueRepository implements writequeue.Repository for testing
type MockQueueRepository struct {
	mock.Mock
}

func (m *MockQueueRepository) Save(ctx context.Context, items ...*writequeue.Item) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockQueueRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*writequeue.Item, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*writequeue.Item), args.Error(1)
}

func (m *MockQueueRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*writequeue.Item, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*writequeue.Item), args.Error(1)
}

func (m *MockQueueRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*writequeue.Item, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*writequeue.Item), args.Error(1)
}

func (m *MockQueueRepository) Update(ctx context.Context, item *writequeue.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockQueueRepository) FindDead(ctx context.Context, orgID uuid.UUID, page, pageSize int) ([]*writequeue.Item, int64, error) {
	args := m.Called(ctx, orgID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*writequeue.Item), args.Get(1).(int64), args.Error(2)
}

func (m *MockQueueRepository) FindByModification(ctx context.Context, modificationID uuid.UUID) (*writequeue.Item, error) {
	args := m.Called(ctx, modificationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*writequeue.Item), args.Error(1)
}

func (m *MockQueueRepository) CountByStatus(ctx context.Context, orgID uuid.UUID) (map[writequeue.ItemStatus]int64, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[writequeue.ItemStatus]int64), args.Error(1)
}

// MockSyncLogRepository implements writequeue.SyncLogRepository for testing
type MockSyncLogRepository struct {
	mock.Mock
}

func (m *MockSyncLogRepository) Save(ctx context.Context, log *writequeue.SyncLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockSyncLogRepository) FindRecent(ctx context.Context, orgID uuid.UUID, limit int) ([]*writequeue.SyncLog, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*writequeue.SyncLog), args.Error(1)
}

func (m *MockSyncLogRepository) FindByItem(ctx context.Context, itemID uuid.UUID) ([]*writequeue.SyncLog, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*writequeue.SyncLog), args.Error(1)
}

// MockConflictRepository implements conflict.ConflictRepository for testing
type MockConflictRepository struct {
	mock.Mock
}

func (m *MockConflictRepository) Save(ctx context.Context, c *conflict.SyncConflict) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConflictRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*conflict.SyncConflict, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conflict.SyncConflict), args.Error(1)
}

func (m *MockConflictRepository) FindUnresolvedByModification(ctx context.Context, modificationID uuid.UUID) (*conflict.SyncConflict, error) {
	args := m.Called(ctx, modificationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conflict.SyncConflict), args.Error(1)
}

func (m *MockConflictRepository) FindAll(ctx context.Context, orgID uuid.UUID, filter conflict.ConflictFilter) ([]*conflict.SyncConflict, int64, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*conflict.SyncConflict), args.Get(1).(int64), args.Error(2)
}

// MockIngestBatchRepository implements ingestion.IngestBatchRepository for testing
type MockIngestBatchRepository struct {
	mock.Mock
}

func (m *MockIngestBatchRepository) Save(ctx context.Context, batch *ingestion.IngestBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockIngestBatchRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*ingestion.IngestBatch, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingestion.IngestBatch), args.Error(1)
}

func (m *MockIngestBatchRepository) FindLastSucceeded(ctx context.Context, orgID uuid.UUID, endpoint string) (*ingestion.IngestBatch, error) {
	args := m.Called(ctx, orgID, endpoint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingestion.IngestBatch), args.Error(1)
}

func (m *MockIngestBatchRepository) FindAll(ctx context.Context, orgID uuid.UUID, limit int) ([]*ingestion.IngestBatch, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ingestion.IngestBatch), args.Error(1)
}

// MockRawRecordRepository implements ingestion.RawRecordRepository for testing
type MockRawRecordRepository struct {
	mock.Mock
}

func (m *MockRawRecordRepository) SaveChunk(ctx context.Context, records []*ingestion.RawRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockRawRecordRepository) FindByBatch(ctx context.Context, batchID uuid.UUID, afterID *uuid.UUID, limit int) ([]*ingestion.RawRecord, error) {
	args := m.Called(ctx, batchID, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ingestion.RawRecord), args.Error(1)
}

func (m *MockRawRecordRepository) CountByBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(int64), args.Error(1)
}

// MockRuleSetRepository implements transform.RuleSetRepository for testing
type MockRuleSetRepository struct {
	mock.Mock
}

func (m *MockRuleSetRepository) Save(ctx context.Context, rs *transform.RuleSet) error {
	args := m.Called(ctx, rs)
	return args.Error(0)
}

func (m *MockRuleSetRepository) FindActiveAt(ctx context.Context, orgID uuid.UUID, entityType string, at time.Time) (*transform.RuleSet, error) {
	args := m.Called(ctx, orgID, entityType, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transform.RuleSet), args.Error(1)
}

func (m *MockRuleSetRepository) FindByVersion(ctx context.Context, orgID uuid.UUID, entityType string, version int) (*transform.RuleSet, error) {
	args := m.Called(ctx, orgID, entityType, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transform.RuleSet), args.Error(1)
}

func (m *MockRuleSetRepository) FindAll(ctx context.Context, orgID uuid.UUID, entityType string) ([]*transform.RuleSet, error) {
	args := m.Called(ctx, orgID, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transform.RuleSet), args.Error(1)
}

// MockLineageRepository implements transform.LineageRepository for testing
type MockLineageRepository struct {
	mock.Mock
}

func (m *MockLineageRepository) Save(ctx context.Context, lineage *transform.Lineage) error {
	args := m.Called(ctx, lineage)
	return args.Error(0)
}

func (m *MockLineageRepository) FindByRecord(ctx context.Context, recordID uuid.UUID) ([]*transform.Lineage, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transform.Lineage), args.Error(1)
}

// MockProgressRepository implements job.ProgressRepository for testing
type MockProgressRepository struct {
	mock.Mock
}

func (m *MockProgressRepository) Save(ctx context.Context, progress *job.Progress) error {
	args := m.Called(ctx, progress)
	return args.Error(0)
}

func (m *MockProgressRepository) FindByJob(ctx context.Context, orgID, jobID uuid.UUID) (*job.Progress, error) {
	args := m.Called(ctx, orgID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Progress), args.Error(1)
}
