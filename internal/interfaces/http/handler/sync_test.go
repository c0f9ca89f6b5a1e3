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

	ingestionapp "github.com/syncline/backend/internal/application/ingestion"
	transformapp "github.com/syncline/backend/internal/application/transform"
	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/domain/job"
	"github.com/syncline/backend/internal/infrastructure/config"
	"github.com/syncline/backend/internal/interfaces/http/dto"
)

type syncHandlerFixture struct {
	batchRepo    *MockIngestBatchRepository
	rawRepo      *MockRawRecordRepository
	progressRepo *MockProgressRepository
	handler      *SyncHandler
}

// newSyncHandlerFixture wires the sync handler with no known endpoints, so
// background ingest runs fail fast without touching the repositories.
func newSyncHandlerFixture() *syncHandlerFixture {
	f := &syncHandlerFixture{
		batchRepo:    new(MockIngestBatchRepository),
		rawRepo:      new(MockRawRecordRepository),
		progressRepo: new(MockProgressRepository),
	}
	ingestionService := ingestionapp.NewService(
		f.batchRepo, f.rawRepo, f.progressRepo, nil, nil,
		config.IngestionConfig{}, config.SourceConfig{}, zap.NewNop(),
	)
	transformService := transformapp.NewService(
		f.batchRepo, f.rawRepo, new(MockRuleSetRepository), new(MockMirrorRepository),
		new(MockHistoryRepository), new(MockLineageRepository), f.progressRepo,
		config.IngestionConfig{}, zap.NewNop(),
	)
	f.handler = NewSyncHandler(ingestionService, transformService, zap.NewNop())
	return f
}

func TestSyncHandler_TriggerIngest(t *testing.T) {
	t.Run("accepts the run and returns a job id", func(t *testing.T) {
		f := newSyncHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		body, _ := json.Marshal(map[string]any{"endpoint": "/products", "mode": "full"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/ingest", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Org-ID", uuid.New().String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		jobID, err := uuid.Parse(data["job_id"].(string))
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, jobID)
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		f := newSyncHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		body, _ := json.Marshal(map[string]any{"endpoint": "/products", "mode": "incremental"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/ingest", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Org-ID", uuid.New().String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects missing endpoint", func(t *testing.T) {
		f := newSyncHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		body, _ := json.Marshal(map[string]any{"mode": "full"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/ingest", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Org-ID", uuid.New().String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSyncHandler_TriggerTransform(t *testing.T) {
	f := newSyncHandlerFixture()
	engine := newTestEngine(f.handler.Routes())

	batchID := uuid.New()
	f.batchRepo.On("FindByID", mock.Anything, mock.Anything, batchID).
		Return(nil, ingestion.ErrBatchNotFound).Maybe()

	body, _ := json.Marshal(map[string]any{"batch_id": batchID.String()})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/transform", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Org-ID", uuid.New().String())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["job_id"])
}

func TestSyncHandler_GetJobProgress(t *testing.T) {
	t.Run("returns the progress row", func(t *testing.T) {
		f := newSyncHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		orgID := uuid.New()
		jobID := uuid.New()
		progress := job.NewProgress(jobID, orgID, job.KindIngestion)
		progress.Advance("fetching", 40, 200)

		f.progressRepo.On("FindByJob", mock.Anything, orgID, jobID).Return(progress, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/jobs/"+jobID.String(), nil)
		req.Header.Set("X-Org-ID", orgID.String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "fetching", data["phase"])
		assert.Equal(t, float64(40), data["processed"])
	})

	t.Run("maps unknown job to 404", func(t *testing.T) {
		f := newSyncHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		jobID := uuid.New()
		f.progressRepo.On("FindByJob", mock.Anything, mock.Anything, jobID).
			Return(nil, job.ErrProgressNotFound)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/jobs/"+jobID.String(), nil)
		req.Header.Set("X-Org-ID", uuid.New().String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSyncHandler_Batches(t *testing.T) {
	t.Run("lists recent batches", func(t *testing.T) {
		f := newSyncHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		orgID := uuid.New()
		batch, err := ingestion.NewIngestBatch(orgID, "/products", "product", ingestion.SyncModeFull)
		require.NoError(t, err)

		f.batchRepo.On("FindAll", mock.Anything, orgID, 50).
			Return([]*ingestion.IngestBatch{batch}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/batches", nil)
		req.Header.Set("X-Org-ID", orgID.String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		batches := resp.Data.([]interface{})
		require.Len(t, batches, 1)
		first := batches[0].(map[string]interface{})
		assert.Equal(t, "/products", first["endpoint"])
	})

	t.Run("returns one batch by id", func(t *testing.T) {
		f := newSyncHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		orgID := uuid.New()
		batch, err := ingestion.NewIngestBatch(orgID, "/products", "product", ingestion.SyncModeDelta)
		require.NoError(t, err)

		f.batchRepo.On("FindByID", mock.Anything, orgID, batch.ID).Return(batch, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/batches/"+batch.ID.String(), nil)
		req.Header.Set("X-Org-ID", orgID.String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("scopes batch lookup to the organization", func(t *testing.T) {
		f := newSyncHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		batch, err := ingestion.NewIngestBatch(uuid.New(), "/products", "product", ingestion.SyncModeDelta)
		require.NoError(t, err)
		otherOrg := uuid.New()

		f.batchRepo.On("FindByID", mock.Anything, otherOrg, batch.ID).
			Return(nil, ingestion.ErrBatchNotFound)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/batches/"+batch.ID.String(), nil)
		req.Header.Set("X-Org-ID", otherOrg.String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rejects malformed batch id", func(t *testing.T) {
		f := newSyncHandlerFixture()
		engine := newTestEngine(f.handler.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/batches/nope", nil)
		req.Header.Set("X-Org-ID", uuid.New().String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
