package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/syncline/backend/internal/domain/conflict"
	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/writequeue"
)

// MockModificationRepository is a mock implementation of mirror.ModificationRepository
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

// MockMirrorRepository is a mock implementation of mirror.MirrorRepository
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

// MockHistoryRepository is a mock implementation of mirror.HistoryRepository
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

// MockConflictRepository is a mock implementation of conflict.ConflictRepository
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

// MockQueueRepository is a mock implementation of writequeue.Repository
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

type serviceFixture struct {
	modRepo      *MockModificationRepository
	mirrorRepo   *MockMirrorRepository
	historyRepo  *MockHistoryRepository
	conflictRepo *MockConflictRepository
	queueRepo    *MockQueueRepository
	service      *Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		modRepo:      new(MockModificationRepository),
		mirrorRepo:   new(MockMirrorRepository),
		historyRepo:  new(MockHistoryRepository),
		conflictRepo: new(MockConflictRepository),
		queueRepo:    new(MockQueueRepository),
	}
	f.service = NewService(f.modRepo, f.mirrorRepo, f.historyRepo, f.conflictRepo,
		f.queueRepo, shared.NopPublisher{}, zap.NewNop())
	return f
}

func testRecord(orgID uuid.UUID, version int64) *mirror.MirrorRecord {
	record := mirror.NewMirrorRecord(orgID, "product", "SKU-1001", shared.Document{
		"name":   "Walnut Desk",
		"status": "active",
		"amount": 149.5,
	})
	record.Version = version
	return record
}

func TestDetect(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	t.Run("clean when the base version is current", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID, 3)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)

		f.modRepo.On("FindByID", ctx, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)

		result, err := f.service.Detect(ctx, mod.ID)
		require.NoError(t, err)
		assert.False(t, result.HasConflict)
		assert.False(t, result.CanAutoMerge)
		f.conflictRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("auto-merges disjoint field sets by rebasing", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID, 5)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)

		// Upstream changed only the amount between v3 and v5
		base := record.Snapshot(mirror.ChangeOriginTransform)
		base.Version = 3
		base.Document = shared.Document{"name": "Walnut Desk", "status": "active", "amount": 120.0}

		f.modRepo.On("FindByID", ctx, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.conflictRepo.On("FindUnresolvedByModification", ctx, mod.ID).
			Return(nil, conflict.ErrConflictNotFound)
		f.historyRepo.On("FindBetween", ctx, record.ID, int64(3), int64(5)).
			Return([]*mirror.MirrorHistory{base}, nil)
		f.modRepo.On("Save", ctx, mod).Return(nil)

		result, err := f.service.Detect(ctx, mod.ID)
		require.NoError(t, err)
		assert.True(t, result.CanAutoMerge)
		assert.False(t, result.HasConflict)
		assert.Equal(t, int64(5), mod.BaseVersion, "rebase must advance the base version")
		assert.Equal(t, "Oak Desk", mod.Delta["name"], "rebase without data must keep the delta")
		f.conflictRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("auto-merges across a single version bump", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID, 4)
		record.Document["amount"] = 199.0
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)

		// The bump from v3 to v4 left exactly one snapshot, labeled with the
		// pre-bump version 3. It must land in the [3, 4) window or the diff
		// degrades to "whole document changed" and falsely conflicts.
		base := record.Snapshot(mirror.ChangeOriginTransform)
		base.Version = 3
		base.Document = shared.Document{"name": "Walnut Desk", "status": "active", "amount": 149.5}

		f.modRepo.On("FindByID", ctx, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.conflictRepo.On("FindUnresolvedByModification", ctx, mod.ID).
			Return(nil, conflict.ErrConflictNotFound)
		f.historyRepo.On("FindBetween", ctx, record.ID, int64(3), int64(4)).
			Return([]*mirror.MirrorHistory{base}, nil)
		f.modRepo.On("Save", ctx, mod).Return(nil)

		result, err := f.service.Detect(ctx, mod.ID)
		require.NoError(t, err)
		assert.True(t, result.CanAutoMerge)
		assert.False(t, result.HasConflict)
		assert.Equal(t, int64(4), mod.BaseVersion)
		f.conflictRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("opens a conflict on overlapping fields", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID, 5)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)

		base := record.Snapshot(mirror.ChangeOriginTransform)
		base.Version = 3
		base.Document = shared.Document{"name": "Teak Desk", "status": "active", "amount": 149.5}

		f.modRepo.On("FindByID", ctx, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.conflictRepo.On("FindUnresolvedByModification", ctx, mod.ID).
			Return(nil, conflict.ErrConflictNotFound)
		f.historyRepo.On("FindBetween", ctx, record.ID, int64(3), int64(5)).
			Return([]*mirror.MirrorHistory{base}, nil)
		f.conflictRepo.On("Save", ctx, mock.AnythingOfType("*conflict.SyncConflict")).Return(nil)

		result, err := f.service.Detect(ctx, mod.ID)
		require.NoError(t, err)
		assert.True(t, result.HasConflict)
		require.NotNil(t, result.Conflict)
		assert.Equal(t, []string{"name"}, result.Conflict.ConflictFields)
		assert.Equal(t, int64(3), result.Conflict.BaseVersion)
		assert.Equal(t, int64(5), result.Conflict.MirrorVersion)
	})

	t.Run("treats the whole document as changed without history", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID, 5)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)

		f.modRepo.On("FindByID", ctx, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.conflictRepo.On("FindUnresolvedByModification", ctx, mod.ID).
			Return(nil, conflict.ErrConflictNotFound)
		f.historyRepo.On("FindBetween", ctx, record.ID, int64(3), int64(5)).
			Return([]*mirror.MirrorHistory{}, nil)
		f.conflictRepo.On("Save", ctx, mock.AnythingOfType("*conflict.SyncConflict")).Return(nil)

		result, err := f.service.Detect(ctx, mod.ID)
		require.NoError(t, err)
		assert.True(t, result.HasConflict)
		assert.Equal(t, []string{"name"}, result.Conflict.ConflictFields)
	})

	t.Run("returns the existing unresolved conflict", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID, 5)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)
		existing := conflict.NewSyncConflict(orgID, mod.ID, record.ID, 3, 5,
			mod.Delta, record.Document, []string{"name"})

		f.modRepo.On("FindByID", ctx, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.conflictRepo.On("FindUnresolvedByModification", ctx, mod.ID).Return(existing, nil)

		result, err := f.service.Detect(ctx, mod.ID)
		require.NoError(t, err)
		assert.True(t, result.HasConflict)
		assert.Same(t, existing, result.Conflict)
		f.conflictRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	setup := func(f *serviceFixture) (*conflict.SyncConflict, *mirror.Modification, *mirror.MirrorRecord) {
		record := testRecord(orgID, 5)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)
		c := conflict.NewSyncConflict(orgID, mod.ID, record.ID, 3, 5,
			mod.Delta.Clone(), record.Document.Clone(), []string{"name"})

		f.conflictRepo.On("FindByID", ctx, orgID, c.ID).Return(c, nil)
		f.modRepo.On("FindByID", ctx, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.queueRepo.On("FindByModification", ctx, mod.ID).
			Return(nil, writequeue.ErrItemNotFound).Maybe()
		return c, mod, record
	}

	t.Run("use_source settles the edit at the mirror version", func(t *testing.T) {
		f := newServiceFixture()
		c, mod, _ := setup(f)

		f.modRepo.On("Save", ctx, mod).Return(nil)
		f.conflictRepo.On("Save", ctx, c).Return(nil)

		resolved, err := f.service.Resolve(ctx, orgID, c.ID, conflict.StrategyUseSource, nil)
		require.NoError(t, err)
		assert.Equal(t, conflict.ConflictStatusResolved, resolved.Status)
		assert.Equal(t, conflict.StrategyUseSource, resolved.Strategy)
		assert.Equal(t, mirror.ModificationStatusSynced, mod.Status)
		assert.Equal(t, int64(5), mod.BaseVersion)
		f.queueRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		f.modRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("completes the queue item parked on the conflict", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID, 5)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)
		c := conflict.NewSyncConflict(orgID, mod.ID, record.ID, 3, 5,
			mod.Delta.Clone(), record.Document.Clone(), []string{"name"})

		parked := writequeue.NewItem(orgID, mod.ID, record.ID, record.EntityType, record.ExternalID,
			writequeue.OperationUpdate, mod.Delta.Clone())
		parked.MarkConflicted(c.ID)

		f.conflictRepo.On("FindByID", ctx, orgID, c.ID).Return(c, nil)
		f.modRepo.On("FindByID", ctx, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.modRepo.On("Save", ctx, mod).Return(nil)
		f.queueRepo.On("FindByModification", ctx, mod.ID).Return(parked, nil)
		f.queueRepo.On("Update", ctx, parked).Return(nil)
		f.conflictRepo.On("Save", ctx, c).Return(nil)

		_, err = f.service.Resolve(ctx, orgID, c.ID, conflict.StrategyUseSource, nil)
		require.NoError(t, err)
		assert.Equal(t, writequeue.ItemStatusCompleted, parked.Status)
		f.queueRepo.AssertExpectations(t)
	})

	t.Run("use_local rebases and requeues the delta", func(t *testing.T) {
		f := newServiceFixture()
		c, mod, _ := setup(f)

		f.modRepo.On("Save", ctx, mod).Return(nil)
		f.queueRepo.On("Save", ctx, mock.AnythingOfType("[]*writequeue.Item")).Return(nil)
		f.conflictRepo.On("Save", ctx, c).Return(nil)

		resolved, err := f.service.Resolve(ctx, orgID, c.ID, conflict.StrategyUseLocal, nil)
		require.NoError(t, err)
		assert.Equal(t, conflict.ConflictStatusResolved, resolved.Status)
		assert.Equal(t, int64(5), mod.BaseVersion)
		assert.Equal(t, "Oak Desk", mod.Delta["name"])
		assert.Equal(t, mirror.ModificationStatusPendingSync, mod.Status)
		f.queueRepo.AssertExpectations(t)
	})

	t.Run("merge replaces the delta and requeues", func(t *testing.T) {
		f := newServiceFixture()
		c, mod, _ := setup(f)
		merged := shared.Document{"name": "Oak Desk (refinished)"}

		f.modRepo.On("Save", ctx, mod).Return(nil)
		f.queueRepo.On("Save", ctx, mock.AnythingOfType("[]*writequeue.Item")).Return(nil)
		f.conflictRepo.On("Save", ctx, c).Return(nil)

		resolved, err := f.service.Resolve(ctx, orgID, c.ID, conflict.StrategyMerge, merged)
		require.NoError(t, err)
		assert.Equal(t, merged, resolved.MergedResult)
		assert.Equal(t, merged, mod.Delta)
		assert.Equal(t, int64(5), mod.BaseVersion)
	})

	t.Run("merge without merged data is rejected", func(t *testing.T) {
		f := newServiceFixture()
		c, _, _ := setup(f)

		_, err := f.service.Resolve(ctx, orgID, c.ID, conflict.StrategyMerge, nil)
		assert.ErrorIs(t, err, conflict.ErrMergedDataRequired)
		assert.Equal(t, conflict.ConflictStatusUnresolved, c.Status)
	})

	t.Run("resolving twice is rejected", func(t *testing.T) {
		f := newServiceFixture()
		c, mod, _ := setup(f)

		f.modRepo.On("Save", ctx, mod).Return(nil)
		f.conflictRepo.On("Save", ctx, c).Return(nil)

		_, err := f.service.Resolve(ctx, orgID, c.ID, conflict.StrategyUseSource, nil)
		require.NoError(t, err)

		_, err = f.service.Resolve(ctx, orgID, c.ID, conflict.StrategyUseLocal, nil)
		assert.ErrorIs(t, err, conflict.ErrAlreadyResolved)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	f := newServiceFixture()
	unresolved := conflict.ConflictStatusUnresolved
	f.conflictRepo.On("FindAll", ctx, orgID, mock.MatchedBy(func(filter conflict.ConflictFilter) bool {
		return filter.Page == 1 && filter.PageSize == 20 &&
			filter.Status != nil && *filter.Status == conflict.ConflictStatusUnresolved
	})).Return([]*conflict.SyncConflict{}, int64(0), nil)

	_, total, err := f.service.List(ctx, orgID, conflict.ConflictFilter{Status: &unresolved})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}
