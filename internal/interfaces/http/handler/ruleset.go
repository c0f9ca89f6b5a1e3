package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	transformapp "github.com/syncline/backend/internal/application/transform"
	"github.com/syncline/backend/internal/domain/transform"
	"github.com/syncline/backend/internal/interfaces/http/router"
)

// RulesetHandler manages versioned mapping rulesets
type RulesetHandler struct {
	BaseHandler
	transformService *transformapp.Service
}

// NewRulesetHandler creates a new ruleset handler
func NewRulesetHandler(transformService *transformapp.Service) *RulesetHandler {
	return &RulesetHandler{transformService: transformService}
}

// Routes returns the ruleset route group
func (h *RulesetHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("rulesets", "/rulesets").
		GET("", h.List).
		POST("", h.Create)
}

// RulesetResponse is a mapping ruleset version in API form
type RulesetResponse struct {
	ID            uuid.UUID                `json:"id"`
	EntityType    string                   `json:"entity_type"`
	Version       int                      `json:"version"`
	PromotionRule string                   `json:"promotion_rule,omitempty"`
	Mappings      []transform.FieldMapping `json:"mappings"`
	ValidFrom     time.Time                `json:"valid_from"`
	ValidUntil    *time.Time               `json:"valid_until,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

func toRulesetResponse(rs *transform.RuleSet) RulesetResponse {
	return RulesetResponse{
		ID:            rs.ID,
		EntityType:    rs.EntityType,
		Version:       rs.Version,
		PromotionRule: rs.PromotionRule,
		Mappings:      rs.Mappings,
		ValidFrom:     rs.ValidFrom,
		ValidUntil:    rs.ValidUntil,
		CreatedAt:     rs.CreatedAt,
	}
}

// createRulesetRequest defines a new ruleset version. ValidFrom defaults
// to now; earlier versions stay resolvable for replay.
type createRulesetRequest struct {
	EntityType    string                   `json:"entity_type" binding:"required"`
	PromotionRule string                   `json:"promotion_rule"`
	Mappings      []transform.FieldMapping `json:"mappings" binding:"required,min=1"`
	ValidFrom     *time.Time               `json:"valid_from"`
}

// Create publishes a new ruleset version for an entity type
func (h *RulesetHandler) Create(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}

	var req createRulesetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	validFrom := time.Now()
	if req.ValidFrom != nil {
		validFrom = *req.ValidFrom
	}

	rs, err := h.transformService.CreateRuleSet(c.Request.Context(), orgID,
		req.EntityType, req.PromotionRule, req.Mappings, validFrom)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toRulesetResponse(rs))
}

// List lists ruleset versions, newest first
func (h *RulesetHandler) List(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Missing organization context")
		return
	}

	rulesets, err := h.transformService.ListRuleSets(c.Request.Context(), orgID, c.Query("entity_type"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]RulesetResponse, len(rulesets))
	for i, rs := range rulesets {
		out[i] = toRulesetResponse(rs)
	}
	h.Success(c, out)
}
