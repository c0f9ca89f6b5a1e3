package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/syncline/backend/internal/application/record"
	transformapp "github.com/syncline/backend/internal/application/transform"
	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/transform"
	"github.com/syncline/backend/internal/interfaces/http/dto"
	"github.com/syncline/backend/internal/interfaces/http/router"
)

// RecordHandler serves merged mirror record reads and lineage
type RecordHandler struct {
	BaseHandler
	recordService    *record.Service
	transformService *transformapp.Service
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(recordService *record.Service, transformService *transformapp.Service) *RecordHandler {
	return &RecordHandler{
		recordService:    recordService,
		transformService: transformService,
	}
}

// Routes returns the record route group
func (h *RecordHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("records", "/records").
		GET("", h.List).
		GET("/:id", h.Get).
		GET("/:id/lineage", h.GetLineage)
}

// MergedRecordResponse is a mirror record with the caller's live edit
// overlaid
type MergedRecordResponse struct {
	ID             uuid.UUID       `json:"id"`
	EntityType     string          `json:"entity_type"`
	ExternalID     string          `json:"external_id"`
	Version        int64           `json:"version"`
	SourceVersion  string          `json:"source_version"`
	Document       shared.Document `json:"document"`
	Name           string          `json:"name"`
	Status         string          `json:"status"`
	Amount         float64         `json:"amount"`
	Discontinued   bool            `json:"discontinued"`
	HasPendingEdit bool            `json:"has_pending_edit"`
	EditStatus     string          `json:"edit_status,omitempty"`
	LastSyncedAt   time.Time       `json:"last_synced_at"`
}

func toMergedRecordResponse(m *record.MergedRecord) MergedRecordResponse {
	resp := MergedRecordResponse{
		ID:            m.Record.ID,
		EntityType:    m.Record.EntityType,
		ExternalID:    m.Record.ExternalID,
		Version:       m.Record.Version,
		SourceVersion: m.Record.SourceVersion,
		Document:      m.Document,
		Name:          m.Record.Name,
		Status:        m.Record.Status,
		Amount:        m.Record.Amount,
		Discontinued:  m.Record.Discontinued,
		LastSyncedAt:  m.Record.LastSyncedAt,
	}
	if m.Modification != nil {
		resp.HasPendingEdit = true
		resp.EditStatus = string(m.Modification.Status)
	}
	return resp
}

// recordListQuery holds list filter query parameters
type recordListQuery struct {
	dto.ListRequest
	EntityType   string `form:"entity_type"`
	Status       string `form:"status"`
	Discontinued *bool  `form:"discontinued"`
}

// List returns merged records for the calling user
func (h *RecordHandler) List(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.BadRequest(c, "Missing user context")
		return
	}

	var q recordListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	q.Normalize()

	filter := mirror.RecordFilter{
		EntityType:   q.EntityType,
		Status:       q.Status,
		Search:       q.Search,
		Discontinued: q.Discontinued,
		Page:         q.Page,
		PageSize:     q.PageSize,
	}

	merged, total, err := h.recordService.ListMerged(c.Request.Context(), orgID, userID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]MergedRecordResponse, len(merged))
	for i, m := range merged {
		out[i] = toMergedRecordResponse(m)
	}
	h.SuccessWithMeta(c, out, total, q.Page, q.PageSize)
}

// Get returns one merged record
func (h *RecordHandler) Get(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.BadRequest(c, "Missing user context")
		return
	}
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid record ID")
		return
	}

	merged, err := h.recordService.GetMerged(c.Request.Context(), orgID, userID, recordID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toMergedRecordResponse(merged))
}

// LineageResponse is one transformation step of a record
type LineageResponse struct {
	RawRecordID    uuid.UUID `json:"raw_record_id"`
	BatchID        uuid.UUID `json:"batch_id"`
	RulesetVersion int       `json:"ruleset_version"`
	MirrorVersion  int64     `json:"mirror_version"`
	CreatedAt      time.Time `json:"created_at"`
}

func toLineageResponse(l *transform.Lineage) LineageResponse {
	return LineageResponse{
		RawRecordID:    l.RawRecordID,
		BatchID:        l.BatchID,
		RulesetVersion: l.RulesetVersion,
		MirrorVersion:  l.MirrorVersion,
		CreatedAt:      l.CreatedAt,
	}
}

// GetLineage returns the transformation lineage of a record
func (h *RecordHandler) GetLineage(c *gin.Context) {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid record ID")
		return
	}

	lineage, err := h.transformService.GetLineage(c.Request.Context(), recordID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]LineageResponse, len(lineage))
	for i, l := range lineage {
		out[i] = toLineageResponse(l)
	}
	h.Success(c, out)
}
