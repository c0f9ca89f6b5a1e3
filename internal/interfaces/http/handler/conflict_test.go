package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	conflictapp "github.com/syncline/backend/internal/application/conflict"
	"github.com/syncline/backend/internal/domain/conflict"
	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/writequeue"
	"github.com/syncline/backend/internal/interfaces/http/dto"
)

type conflictHandlerFixture struct {
	mirrorRepo   *MockMirrorRepository
	modRepo      *MockModificationRepository
	historyRepo  *MockHistoryRepository
	conflictRepo *MockConflictRepository
	queueRepo    *MockQueueRepository
	handler      *ConflictHandler
}

func newConflictHandlerFixture() *conflictHandlerFixture {
	f := &conflictHandlerFixture{
		mirrorRepo:   new(MockMirrorRepository),
		modRepo:      new(MockModificationRepository),
		historyRepo:  new(MockHistoryRepository),
		conflictRepo: new(MockConflictRepository),
		queueRepo:    new(MockQueueRepository),
	}
	service := conflictapp.NewService(
		f.modRepo, f.mirrorRepo, f.historyRepo, f.conflictRepo, f.queueRepo,
		&shared.NopPublisher{}, zap.NewNop(),
	)
	f.handler = NewConflictHandler(service)
	return f
}

func testConflict(orgID uuid.UUID) *conflict.SyncConflict {
	return conflict.NewSyncConflict(orgID, uuid.New(), uuid.New(), 3, 5,
		shared.Document{"name": "Oak Desk"},
		shared.Document{"name": "Teak Desk", "status": "active"},
		[]string{"name"},
	)
}

func TestConflictHandler_List(t *testing.T) {
	t.Run("lists unresolved conflicts", func(t *testing.T) {
		f := newConflictHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		orgID := uuid.New()
		cf := testConflict(orgID)
		f.conflictRepo.On("FindAll", mock.Anything, orgID, mock.MatchedBy(func(filter conflict.ConflictFilter) bool {
			return filter.Status != nil && *filter.Status == conflict.ConflictStatusUnresolved
		})).Return([]*conflict.SyncConflict{cf}, int64(1), nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/conflicts?status=unresolved", nil)
		req.Header.Set("X-Org-ID", orgID.String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		conflicts := resp.Data.([]interface{})
		require.Len(t, conflicts, 1)
		first := conflicts[0].(map[string]interface{})
		assert.Equal(t, cf.ID.String(), first["id"])
		assert.Equal(t, "unresolved", first["status"])

		f.conflictRepo.AssertExpectations(t)
	})

	t.Run("rejects unknown status filter", func(t *testing.T) {
		f := newConflictHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/conflicts?status=bogus", nil)
		req.Header.Set("X-Org-ID", uuid.New().String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestConflictHandler_Get(t *testing.T) {
	f := newConflictHandlerFixture()
	engine := newTestEngine(f.handler.Routes())

	orgID := uuid.New()
	cf := testConflict(orgID)
	f.conflictRepo.On("FindByID", mock.Anything, orgID, cf.ID).Return(cf, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conflicts/"+cf.ID.String(), nil)
	req.Header.Set("X-Org-ID", orgID.String())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	fields := data["conflict_fields"].([]interface{})
	assert.Equal(t, "name", fields[0])
}

func TestConflictHandler_Get_OtherOrg(t *testing.T) {
	f := newConflictHandlerFixture()
	engine := newTestEngine(f.handler.Routes())

	cf := testConflict(uuid.New())
	otherOrg := uuid.New()
	f.conflictRepo.On("FindByID", mock.Anything, otherOrg, cf.ID).
		Return(nil, conflict.ErrConflictNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conflicts/"+cf.ID.String(), nil)
	req.Header.Set("X-Org-ID", otherOrg.String())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConflictHandler_Resolve(t *testing.T) {
	t.Run("use_source discards the local edit", func(t *testing.T) {
		f := newConflictHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		orgID := uuid.New()
		userID := uuid.New()
		rec := testMirrorRecord(orgID)
		mod, err := mirror.NewModification(orgID, userID, rec.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)
		cf := conflict.NewSyncConflict(orgID, mod.ID, rec.ID, 3, 5,
			mod.Delta, rec.Document, []string{"name"})

		f.conflictRepo.On("FindByID", mock.Anything, orgID, cf.ID).Return(cf, nil)
		f.modRepo.On("FindByID", mock.Anything, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", mock.Anything, orgID, rec.ID).Return(rec, nil)
		f.modRepo.On("Save", mock.Anything, mod).Return(nil)
		f.queueRepo.On("FindByModification", mock.Anything, mod.ID).
			Return(nil, writequeue.ErrItemNotFound)
		f.conflictRepo.On("Save", mock.Anything, cf).Return(nil)

		body, _ := json.Marshal(map[string]any{"strategy": "use_source"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/conflicts/"+cf.ID.String()+"/resolve", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Org-ID", orgID.String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "resolved", data["status"])
		assert.Equal(t, "use_source", data["strategy"])
		assert.Equal(t, mirror.ModificationStatusSynced, mod.Status)
		assert.Equal(t, rec.Version, mod.BaseVersion)

		f.modRepo.AssertExpectations(t)
	})

	t.Run("use_local requeues the rebased edit", func(t *testing.T) {
		f := newConflictHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		orgID := uuid.New()
		userID := uuid.New()
		rec := testMirrorRecord(orgID)
		rec.Version = 5
		mod, err := mirror.NewModification(orgID, userID, rec.ID, shared.Document{"name": "Oak Desk"}, 3)
		require.NoError(t, err)
		cf := conflict.NewSyncConflict(orgID, mod.ID, rec.ID, 3, 5,
			mod.Delta, rec.Document, []string{"name"})

		f.conflictRepo.On("FindByID", mock.Anything, orgID, cf.ID).Return(cf, nil)
		f.modRepo.On("FindByID", mock.Anything, mod.ID).Return(mod, nil)
		f.mirrorRepo.On("FindByID", mock.Anything, orgID, rec.ID).Return(rec, nil)
		f.modRepo.On("Save", mock.Anything, mod).Return(nil)
		f.queueRepo.On("Save", mock.Anything, mock.AnythingOfType("[]*writequeue.Item")).Return(nil)
		f.queueRepo.On("FindByModification", mock.Anything, mod.ID).
			Return(nil, writequeue.ErrItemNotFound)
		f.conflictRepo.On("Save", mock.Anything, cf).Return(nil)

		body, _ := json.Marshal(map[string]any{"strategy": "use_local"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/conflicts/"+cf.ID.String()+"/resolve", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Org-ID", orgID.String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(5), mod.BaseVersion)
		f.queueRepo.AssertExpectations(t)
	})

	t.Run("already resolved conflicts map to 409", func(t *testing.T) {
		f := newConflictHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		orgID := uuid.New()
		cf := testConflict(orgID)
		require.NoError(t, cf.Resolve(conflict.StrategyUseSource, nil))

		f.conflictRepo.On("FindByID", mock.Anything, orgID, cf.ID).Return(cf, nil)

		body, _ := json.Marshal(map[string]any{"strategy": "use_source"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/conflicts/"+cf.ID.String()+"/resolve", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Org-ID", orgID.String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("rejects unknown strategy at binding", func(t *testing.T) {
		f := newConflictHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		body, _ := json.Marshal(map[string]any{"strategy": "coin_flip"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/conflicts/"+uuid.New().String()+"/resolve", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Org-ID", uuid.New().String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
