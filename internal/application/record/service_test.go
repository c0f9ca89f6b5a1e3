package record

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/writequeue"
)

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
	mirrorRepo *MockMirrorRepository
	modRepo    *MockModificationRepository
	queueRepo  *MockQueueRepository
	service    *Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		mirrorRepo: new(MockMirrorRepository),
		modRepo:    new(MockModificationRepository),
		queueRepo:  new(MockQueueRepository),
	}
	f.service = NewService(f.mirrorRepo, f.modRepo, f.queueRepo, shared.NopPublisher{}, zap.NewNop())
	return f
}

func testRecord(orgID uuid.UUID) *mirror.MirrorRecord {
	return mirror.NewMirrorRecord(orgID, "product", "SKU-1001", shared.Document{
		"name":   "Walnut Desk",
		"status": "active",
		"amount": 149.5,
	})
}

func TestGetMerged(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	t.Run("overlays the user's live delta", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, record.Version)
		require.NoError(t, err)

		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.modRepo.On("FindLive", ctx, orgID, userID, record.ID).Return(mod, nil)

		merged, err := f.service.GetMerged(ctx, orgID, userID, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "Oak Desk", merged.Document["name"])
		assert.Equal(t, "active", merged.Document["status"])
		assert.Equal(t, "Walnut Desk", record.Document["name"], "mirror document must not be mutated")
		assert.Same(t, mod, merged.Modification)
	})

	t.Run("returns the plain mirror view without a live edit", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID)

		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.modRepo.On("FindLive", ctx, orgID, userID, record.ID).Return(nil, mirror.ErrModificationNotFound)

		merged, err := f.service.GetMerged(ctx, orgID, userID, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "Walnut Desk", merged.Document["name"])
		assert.Nil(t, merged.Modification)
	})

	t.Run("propagates missing records", func(t *testing.T) {
		f := newServiceFixture()
		recordID := uuid.New()
		f.mirrorRepo.On("FindByID", ctx, orgID, recordID).Return(nil, mirror.ErrRecordNotFound)

		_, err := f.service.GetMerged(ctx, orgID, userID, recordID)
		assert.ErrorIs(t, err, mirror.ErrRecordNotFound)
	})
}

func TestListMerged(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	f := newServiceFixture()
	r1 := testRecord(orgID)
	r2 := testRecord(orgID)
	mod, err := mirror.NewModification(orgID, userID, r1.ID, shared.Document{"status": "discontinued"}, r1.Version)
	require.NoError(t, err)

	f.mirrorRepo.On("FindAll", ctx, orgID, mock.MatchedBy(func(filter mirror.RecordFilter) bool {
		return filter.Page == 1 && filter.PageSize == 20
	})).Return([]*mirror.MirrorRecord{r1, r2}, int64(2), nil)
	f.modRepo.On("FindLiveByRecords", ctx, orgID, userID, []uuid.UUID{r1.ID, r2.ID}).
		Return(map[uuid.UUID]*mirror.Modification{r1.ID: mod}, nil)

	merged, total, err := f.service.ListMerged(ctx, orgID, userID, mirror.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, merged, 2)
	assert.Equal(t, "discontinued", merged[0].Document["status"])
	assert.Equal(t, "active", merged[1].Document["status"])
	assert.Nil(t, merged[1].Modification)
}

func TestStage(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	t.Run("creates a new modification at the record's version", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID)
		record.Version = 4

		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.modRepo.On("FindLive", ctx, orgID, userID, record.ID).Return(nil, mirror.ErrModificationNotFound)
		f.modRepo.On("Save", ctx, mock.AnythingOfType("*mirror.Modification")).Return(nil)

		mod, err := f.service.Stage(ctx, orgID, userID, record.ID, shared.Document{"name": "Oak Desk"})
		require.NoError(t, err)
		assert.Equal(t, int64(4), mod.BaseVersion)
		assert.Equal(t, mirror.ModificationStatusModified, mod.Status)
		f.modRepo.AssertExpectations(t)
	})

	t.Run("amends an existing live modification", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID)
		existing, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, 1)
		require.NoError(t, err)

		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.modRepo.On("FindLive", ctx, orgID, userID, record.ID).Return(existing, nil)
		f.modRepo.On("Save", ctx, existing).Return(nil)

		mod, err := f.service.Stage(ctx, orgID, userID, record.ID, shared.Document{"status": "discontinued"})
		require.NoError(t, err)
		assert.Same(t, existing, mod)
		assert.Equal(t, "Oak Desk", mod.Delta["name"])
		assert.Equal(t, "discontinued", mod.Delta["status"])
		assert.Equal(t, int64(1), mod.BaseVersion, "amending must keep the original base version")
	})

	t.Run("rejects an empty delta", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID)

		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.modRepo.On("FindLive", ctx, orgID, userID, record.ID).Return(nil, mirror.ErrModificationNotFound)

		_, err := f.service.Stage(ctx, orgID, userID, record.ID, shared.Document{})
		assert.ErrorIs(t, err, mirror.ErrEmptyDelta)
		f.modRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestStageBatch(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	f := newServiceFixture()
	good := testRecord(orgID)
	missingID := uuid.New()

	f.mirrorRepo.On("FindByID", ctx, orgID, good.ID).Return(good, nil)
	f.mirrorRepo.On("FindByID", ctx, orgID, missingID).Return(nil, mirror.ErrRecordNotFound)
	f.modRepo.On("FindLive", ctx, orgID, userID, good.ID).Return(nil, mirror.ErrModificationNotFound)
	f.modRepo.On("Save", ctx, mock.AnythingOfType("*mirror.Modification")).Return(nil)

	outcomes := f.service.StageBatch(ctx, orgID, userID, []StagedEdit{
		{RecordID: good.ID, Delta: shared.Document{"name": "Oak Desk"}},
		{RecordID: missingID, Delta: shared.Document{"name": "Ghost"}},
	})

	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0].Err)
	assert.NotNil(t, outcomes[0].Modification)
	assert.ErrorIs(t, outcomes[1].Err, mirror.ErrRecordNotFound)
	assert.Nil(t, outcomes[1].Modification)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()
	recordID := uuid.New()

	t.Run("deletes the live modification", func(t *testing.T) {
		f := newServiceFixture()
		mod, err := mirror.NewModification(orgID, userID, recordID, shared.Document{"name": "Oak Desk"}, 1)
		require.NoError(t, err)

		f.modRepo.On("FindLive", ctx, orgID, userID, recordID).Return(mod, nil)
		f.modRepo.On("Delete", ctx, mod.ID).Return(nil)

		require.NoError(t, f.service.Discard(ctx, orgID, userID, recordID))
		f.modRepo.AssertExpectations(t)
	})

	t.Run("propagates a missing modification", func(t *testing.T) {
		f := newServiceFixture()
		f.modRepo.On("FindLive", ctx, orgID, userID, recordID).Return(nil, mirror.ErrModificationNotFound)

		err := f.service.Discard(ctx, orgID, userID, recordID)
		assert.ErrorIs(t, err, mirror.ErrModificationNotFound)
	})
}

func TestRequestSync(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	t.Run("enqueues the live edit", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, record.Version)
		require.NoError(t, err)

		f.modRepo.On("FindLive", ctx, orgID, userID, record.ID).Return(mod, nil)
		f.queueRepo.On("FindByModification", ctx, mod.ID).Return(nil, writequeue.ErrItemNotFound)
		f.mirrorRepo.On("FindByID", ctx, orgID, record.ID).Return(record, nil)
		f.modRepo.On("Save", ctx, mod).Return(nil)
		f.queueRepo.On("Save", ctx, mock.AnythingOfType("[]*writequeue.Item")).Return(nil)

		item, err := f.service.RequestSync(ctx, orgID, userID, record.ID)
		require.NoError(t, err)
		assert.Equal(t, writequeue.ItemStatusPending, item.Status)
		assert.Equal(t, mod.ID, item.ModificationID)
		assert.Equal(t, "SKU-1001", item.ExternalID)
		assert.Equal(t, mirror.ModificationStatusPendingSync, mod.Status)
		f.queueRepo.AssertExpectations(t)
	})

	t.Run("returns the existing pending item instead of duplicating", func(t *testing.T) {
		f := newServiceFixture()
		record := testRecord(orgID)
		mod, err := mirror.NewModification(orgID, userID, record.ID, shared.Document{"name": "Oak Desk"}, record.Version)
		require.NoError(t, err)
		existing := writequeue.NewItem(orgID, mod.ID, record.ID, record.EntityType, record.ExternalID,
			writequeue.OperationUpdate, mod.Delta)

		f.modRepo.On("FindLive", ctx, orgID, userID, record.ID).Return(mod, nil)
		f.queueRepo.On("FindByModification", ctx, mod.ID).Return(existing, nil)

		item, err := f.service.RequestSync(ctx, orgID, userID, record.ID)
		require.NoError(t, err)
		assert.Same(t, existing, item)
		f.queueRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("reports nothing to sync without a live edit", func(t *testing.T) {
		f := newServiceFixture()
		recordID := uuid.New()
		f.modRepo.On("FindLive", ctx, orgID, userID, recordID).Return(nil, mirror.ErrModificationNotFound)

		_, err := f.service.RequestSync(ctx, orgID, userID, recordID)
		assert.ErrorIs(t, err, ErrNothingToSync)
	})
}
