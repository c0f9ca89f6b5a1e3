package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	ingestionapp "github.com/syncline/backend/internal/application/ingestion"
	transformapp "github.com/syncline/backend/internal/application/transform"
	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/domain/job"
	"github.com/syncline/backend/internal/interfaces/http/router"
)

// backgroundJobTimeout bounds a detached ingest or transform run
const backgroundJobTimeout = 30 * time.Minute

// SyncHandler triggers ingestion and transformation runs and serves their
// progress. Runs execute in the background; the response carries a job ID
// the client polls.
type SyncHandler struct {
	BaseHandler
	ingestionService *ingestionapp.Service
	transformService *transformapp.Service
	logger           *zap.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(ingestionService *ingestionapp.Service, transformService *transformapp.Service, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		ingestionService: ingestionService,
		transformService: transformService,
		logger:           logger,
	}
}

// Routes returns the sync route group
func (h *SyncHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("sync", "/sync").
		POST("/ingest", h.TriggerIngest).
		POST("/transform", h.TriggerTransform).
		GET("/jobs/:id", h.GetJobProgress).
		GET("/batches", h.ListBatches).
		GET("/batches/:id", h.GetBatch)
}

// ingestRequest selects the endpoint and mode of an ingestion run
type ingestRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Mode     string `json:"mode" binding:"required,oneof=full delta"`
}

// JobAcceptedResponse carries the pollable job ID of a background run
type JobAcceptedResponse struct {
	JobID uuid.UUID `json:"job_id"`
}

// TriggerIngest starts an ingestion run in the background
func (h *SyncHandler) TriggerIngest(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	jobID := uuid.New()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundJobTimeout)
		defer cancel()
		if _, err := h.ingestionService.Ingest(ctx, jobID, orgID, req.Endpoint, ingestion.SyncMode(req.Mode)); err != nil {
			h.logger.Error("background ingestion run failed",
				zap.String("job_id", jobID.String()),
				zap.String("endpoint", req.Endpoint),
				zap.Error(err),
			)
		}
	}()

	h.Accepted(c, JobAcceptedResponse{JobID: jobID})
}

// transformRequest selects the batch to transform; replay_at rebuilds with
// the ruleset that was active at that instant
type transformRequest struct {
	BatchID  uuid.UUID  `json:"batch_id" binding:"required"`
	ReplayAt *time.Time `json:"replay_at"`
}

// TriggerTransform starts a transformation run in the background
func (h *SyncHandler) TriggerTransform(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}

	var req transformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	opts := transformapp.Options{}
	if req.ReplayAt != nil {
		opts.ReplayAt = *req.ReplayAt
	}

	jobID := uuid.New()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundJobTimeout)
		defer cancel()
		if _, err := h.transformService.Transform(ctx, jobID, orgID, req.BatchID, opts); err != nil {
			h.logger.Error("background transformation run failed",
				zap.String("job_id", jobID.String()),
				zap.String("batch_id", req.BatchID.String()),
				zap.Error(err),
			)
		}
	}()

	h.Accepted(c, JobAcceptedResponse{JobID: jobID})
}

// JobProgressResponse is the live progress of a background run
type JobProgressResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Phase     string    `json:"phase,omitempty"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toJobProgressResponse(p *job.Progress) JobProgressResponse {
	return JobProgressResponse{
		JobID:     p.JobID,
		Kind:      string(p.Kind),
		State:     string(p.State),
		Phase:     p.Phase,
		Processed: p.Processed,
		Total:     p.Total,
		Message:   p.Message,
		StartedAt: p.StartedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// GetJobProgress returns the progress of a background run. A job that has
// not written progress yet reports as pending.
func (h *SyncHandler) GetJobProgress(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID")
		return
	}

	progress, err := h.ingestionService.GetProgress(c.Request.Context(), orgID, jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toJobProgressResponse(progress))
}

// BatchResponse is an ingest batch in API form
type BatchResponse struct {
	ID          uuid.UUID  `json:"id"`
	Endpoint    string     `json:"endpoint"`
	EntityType  string     `json:"entity_type"`
	Mode        string     `json:"mode"`
	Status      string     `json:"status"`
	RecordCount int        `json:"record_count"`
	DriftAlert  string     `json:"drift_alert,omitempty"`
	Cursor      string     `json:"cursor,omitempty"`
	Errors      []string   `json:"errors,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toBatchResponse(b *ingestion.IngestBatch) BatchResponse {
	return BatchResponse{
		ID:          b.ID,
		Endpoint:    b.Endpoint,
		EntityType:  b.EntityType,
		Mode:        string(b.Mode),
		Status:      string(b.Status),
		RecordCount: b.RecordCount,
		DriftAlert:  b.DriftAlert,
		Cursor:      b.Cursor,
		Errors:      b.Errors,
		StartedAt:   b.StartedAt,
		CompletedAt: b.CompletedAt,
	}
}

// ListBatches lists recent ingest batches
func (h *SyncHandler) ListBatches(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}

	batches, err := h.ingestionService.ListBatches(c.Request.Context(), orgID, 50)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]BatchResponse, len(batches))
	for i, b := range batches {
		out[i] = toBatchResponse(b)
	}
	h.Success(c, out)
}

// GetBatch returns one ingest batch
func (h *SyncHandler) GetBatch(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}

	batch, err := h.ingestionService.GetBatch(c.Request.Context(), orgID, batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toBatchResponse(batch))
}
