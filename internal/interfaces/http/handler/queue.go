package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/syncline/backend/internal/application/writesync"
	"github.com/syncline/backend/internal/domain/writequeue"
	"github.com/syncline/backend/internal/interfaces/http/dto"
	"github.com/syncline/backend/internal/interfaces/http/router"
)

// QueueHandler serves write queue observability: status counts, the dead
// letter list, manual retries, and the sync activity log
type QueueHandler struct {
	BaseHandler
	syncService *writesync.Service
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(syncService *writesync.Service) *QueueHandler {
	return &QueueHandler{syncService: syncService}
}

// Routes returns the queue route group
func (h *QueueHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("queue", "/queue").
		GET("/status", h.Status).
		GET("/dead", h.ListDead).
		POST("/dead/:id/retry", h.RetryDead).
		GET("/logs", h.Logs)
}

// QueueStatusResponse is item counts per queue status
type QueueStatusResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Status returns queue item counts per status
func (h *QueueHandler) Status(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}

	counts, err := h.syncService.QueueCounts(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, QueueStatusResponse{
		Pending:    counts[writequeue.ItemStatusPending],
		Processing: counts[writequeue.ItemStatusProcessing],
		Completed:  counts[writequeue.ItemStatusCompleted],
		Failed:     counts[writequeue.ItemStatusFailed],
	})
}

// ListDead lists dead-letter items
func (h *QueueHandler) ListDead(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}

	var q dto.ListRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	q.Normalize()

	items, total, err := h.syncService.ListDead(c.Request.Context(), orgID, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]QueueItemResponse, len(items))
	for i, item := range items {
		out[i] = toQueueItemResponse(item)
	}
	h.SuccessWithMeta(c, out, total, q.Page, q.PageSize)
}

// RetryDead re-enqueues one dead-letter item
func (h *QueueHandler) RetryDead(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid item ID")
		return
	}

	item, err := h.syncService.RetryDead(c.Request.Context(), orgID, itemID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toQueueItemResponse(item))
}

// SyncLogResponse is one sync activity log entry
type SyncLogResponse struct {
	ID             uuid.UUID `json:"id"`
	ItemID         uuid.UUID `json:"item_id"`
	EntityType     string    `json:"entity_type"`
	ExternalID     string    `json:"external_id"`
	Operation      string    `json:"operation"`
	Attempt        int       `json:"attempt"`
	Status         string    `json:"status"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toSyncLogResponse(l *writequeue.SyncLog) SyncLogResponse {
	return SyncLogResponse{
		ID:             l.ID,
		ItemID:         l.ItemID,
		EntityType:     l.EntityType,
		ExternalID:     l.ExternalID,
		Operation:      string(l.Operation),
		Attempt:        l.Attempt,
		Status:         string(l.Status),
		UpstreamStatus: l.UpstreamStatus,
		Message:        l.Message,
		CreatedAt:      l.CreatedAt,
	}
}

// Logs lists recent sync activity
func (h *QueueHandler) Logs(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			h.BadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}

	logs, err := h.syncService.RecentLogs(c.Request.Context(), orgID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]SyncLogResponse, len(logs))
	for i, l := range logs {
		out[i] = toSyncLogResponse(l)
	}
	h.Success(c, out)
}
