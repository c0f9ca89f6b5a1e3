package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	conflictapp "github.com/syncline/backend/internal/application/conflict"
	"github.com/syncline/backend/internal/domain/conflict"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/interfaces/http/dto"
	"github.com/syncline/backend/internal/interfaces/http/router"
)

// ConflictHandler serves conflict inspection and resolution
type ConflictHandler struct {
	BaseHandler
	conflictService *conflictapp.Service
}

// NewConflictHandler creates a new conflict handler
func NewConflictHandler(conflictService *conflictapp.Service) *ConflictHandler {
	return &ConflictHandler{conflictService: conflictService}
}

// Routes returns the conflict route group
func (h *ConflictHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("conflicts", "/conflicts").
		GET("", h.List).
		GET("/:id", h.Get).
		POST("/:id/resolve", h.Resolve)
}

// ConflictResponse is a sync conflict in API form. Both sides' data is
// included so a client can render a three-way comparison.
type ConflictResponse struct {
	ID             uuid.UUID       `json:"id"`
	RecordID       uuid.UUID       `json:"record_id"`
	ModificationID uuid.UUID       `json:"modification_id"`
	BaseVersion    int64           `json:"base_version"`
	MirrorVersion  int64           `json:"mirror_version"`
	LocalDelta     shared.Document `json:"local_delta"`
	SourceDocument shared.Document `json:"source_document"`
	ConflictFields []string        `json:"conflict_fields"`
	Status         string          `json:"status"`
	Strategy       string          `json:"strategy,omitempty"`
	MergedResult   shared.Document `json:"merged_result,omitempty"`
	DetectedAt     time.Time       `json:"detected_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

func toConflictResponse(c *conflict.SyncConflict) ConflictResponse {
	return ConflictResponse{
		ID:             c.ID,
		RecordID:       c.RecordID,
		ModificationID: c.ModificationID,
		BaseVersion:    c.BaseVersion,
		MirrorVersion:  c.MirrorVersion,
		LocalDelta:     c.LocalDelta,
		SourceDocument: c.SourceDocument,
		ConflictFields: c.ConflictFields,
		Status:         string(c.Status),
		Strategy:       string(c.Strategy),
		MergedResult:   c.MergedResult,
		DetectedAt:     c.DetectedAt,
		ResolvedAt:     c.ResolvedAt,
	}
}

// conflictListQuery holds list filter query parameters
type conflictListQuery struct {
	dto.ListRequest
	Status   string `form:"status" binding:"omitempty,oneof=unresolved resolved"`
	RecordID string `form:"record_id" binding:"omitempty,uuid"`
}

// List lists conflicts for the organization
func (h *ConflictHandler) List(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}

	var q conflictListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	q.Normalize()

	filter := conflict.ConflictFilter{Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		status := conflict.ConflictStatus(q.Status)
		filter.Status = &status
	}
	if q.RecordID != "" {
		recordID, _ := uuid.Parse(q.RecordID)
		filter.RecordID = &recordID
	}

	conflicts, total, err := h.conflictService.List(c.Request.Context(), orgID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]ConflictResponse, len(conflicts))
	for i, cf := range conflicts {
		out[i] = toConflictResponse(cf)
	}
	h.SuccessWithMeta(c, out, total, q.Page, q.PageSize)
}

// Get returns one conflict
func (h *ConflictHandler) Get(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}
	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid conflict ID")
		return
	}

	cf, err := h.conflictService.Get(c.Request.Context(), orgID, conflictID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toConflictResponse(cf))
}

// resolveRequest selects a resolution strategy; merged_data is required
// for the merge strategy only
type resolveRequest struct {
	Strategy   string          `json:"strategy" binding:"required,oneof=use_local use_source merge"`
	MergedData shared.Document `json:"merged_data"`
}

// Resolve applies a resolution strategy to a conflict
func (h *ConflictHandler) Resolve(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}
	conflictID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid conflict ID")
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	cf, err := h.conflictService.Resolve(c.Request.Context(), orgID, conflictID,
		conflict.ResolutionStrategy(req.Strategy), req.MergedData)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toConflictResponse(cf))
}
