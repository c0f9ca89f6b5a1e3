package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/syncline/backend/internal/application/record"
	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/writequeue"
	"github.com/syncline/backend/internal/interfaces/http/dto"
	"github.com/syncline/backend/internal/interfaces/http/router"
)

// EditHandler manages staged edits: the user's local deltas against mirror
// records and their hand-off to the write queue
type EditHandler struct {
	BaseHandler
	recordService *record.Service
}

// NewEditHandler creates a new edit handler
func NewEditHandler(recordService *record.Service) *EditHandler {
	return &EditHandler{recordService: recordService}
}

// Routes returns the edit route group
func (h *EditHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("edits", "/edits").
		GET("", h.ListPending).
		POST("/batch", h.StageBatch).
		PUT("/:recordId", h.Stage).
		DELETE("/:recordId", h.Discard).
		POST("/:recordId/sync", h.RequestSync)
}

// ModificationResponse is a staged edit in API form
type ModificationResponse struct {
	ID          uuid.UUID       `json:"id"`
	RecordID    uuid.UUID       `json:"record_id"`
	Delta       shared.Document `json:"delta"`
	BaseVersion int64           `json:"base_version"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toModificationResponse(m *mirror.Modification) ModificationResponse {
	return ModificationResponse{
		ID:          m.ID,
		RecordID:    m.RecordID,
		Delta:       m.Delta,
		BaseVersion: m.BaseVersion,
		Status:      string(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// stageRequest carries the delta to stage against a record
type stageRequest struct {
	Delta shared.Document `json:"delta" binding:"required"`
}

// Stage stages or amends an edit against one record
func (h *EditHandler) Stage(c *gin.Context) {
	orgID, userID, ok := h.identity(c)
	if !ok {
		return
	}
	recordID, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		h.BadRequest(c, "Invalid record ID")
		return
	}

	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	mod, err := h.recordService.Stage(c.Request.Context(), orgID, userID, recordID, req.Delta)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toModificationResponse(mod))
}

// stageBatchRequest carries multiple edits staged in one call
type stageBatchRequest struct {
	Edits []stageBatchEntry `json:"edits" binding:"required,min=1,max=100"`
}

type stageBatchEntry struct {
	RecordID uuid.UUID       `json:"record_id" binding:"required"`
	Delta    shared.Document `json:"delta" binding:"required"`
}

// StageOutcomeResponse is the per-record outcome of a batch staging call
type StageOutcomeResponse struct {
	RecordID     uuid.UUID             `json:"record_id"`
	Modification *ModificationResponse `json:"modification,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// StageBatch stages edits against multiple records, reporting per-record
// outcomes instead of failing the whole batch
func (h *EditHandler) StageBatch(c *gin.Context) {
	orgID, userID, ok := h.identity(c)
	if !ok {
		return
	}

	var req stageBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	edits := make([]record.StagedEdit, len(req.Edits))
	for i, e := range req.Edits {
		edits[i] = record.StagedEdit{RecordID: e.RecordID, Delta: e.Delta}
	}

	outcomes := h.recordService.StageBatch(c.Request.Context(), orgID, userID, edits)

	out := make([]StageOutcomeResponse, len(outcomes))
	for i, o := range outcomes {
		resp := StageOutcomeResponse{RecordID: o.RecordID}
		if o.Err != nil {
			resp.Error = o.Err.Error()
		} else {
			mod := toModificationResponse(o.Modification)
			resp.Modification = &mod
		}
		out[i] = resp
	}
	h.Success(c, out)
}

// Discard removes the caller's staged edit for a record
func (h *EditHandler) Discard(c *gin.Context) {
	orgID, userID, ok := h.identity(c)
	if !ok {
		return
	}
	recordID, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		h.BadRequest(c, "Invalid record ID")
		return
	}

	if err := h.recordService.Discard(c.Request.Context(), orgID, userID, recordID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ListPending lists the caller's live edits
func (h *EditHandler) ListPending(c *gin.Context) {
	orgID, userID, ok := h.identity(c)
	if !ok {
		return
	}

	mods, err := h.recordService.ListPending(c.Request.Context(), orgID, userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]ModificationResponse, len(mods))
	for i, m := range mods {
		out[i] = toModificationResponse(m)
	}
	h.Success(c, out)
}

// QueueItemResponse is a write queue item in API form
type QueueItemResponse struct {
	ID            uuid.UUID  `json:"id"`
	RecordID      uuid.UUID  `json:"record_id"`
	EntityType    string     `json:"entity_type"`
	ExternalID    string     `json:"external_id"`
	Operation     string     `json:"operation"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastError     string     `json:"last_error,omitempty"`
	ConflictID    *uuid.UUID `json:"conflict_id,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toQueueItemResponse(item *writequeue.Item) QueueItemResponse {
	return QueueItemResponse{
		ID:            item.ID,
		RecordID:      item.RecordID,
		EntityType:    item.EntityType,
		ExternalID:    item.ExternalID,
		Operation:     string(item.Operation),
		Status:        string(item.Status),
		RetryCount:    item.RetryCount,
		LastError:     item.LastError,
		ConflictID:    item.ConflictID,
		NextAttemptAt: item.NextAttemptAt,
		CreatedAt:     item.CreatedAt,
	}
}

// RequestSync enqueues the caller's staged edit for write-back
func (h *EditHandler) RequestSync(c *gin.Context) {
	orgID, userID, ok := h.identity(c)
	if !ok {
		return
	}
	recordID, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		h.BadRequest(c, "Invalid record ID")
		return
	}

	item, err := h.recordService.RequestSync(c.Request.Context(), orgID, userID, recordID)
	if err != nil {
		if errors.Is(err, record.ErrNothingToSync) {
			h.UnprocessableEntity(c, dto.ErrCodeInvalidState, "No pending modification to sync")
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, toQueueItemResponse(item))
}

func (h *EditHandler) identity(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := getUserID(c)
	if err != nil {
		h.BadRequest(c, "Missing user context")
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, userID, true
}
