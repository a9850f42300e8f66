package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"facturio/internal/domain"
	"facturio/internal/port"
	"facturio/internal/suggest"
)

// SuggestionHandler serves the human review queue.
type SuggestionHandler struct {
	gate *suggest.Gate
}

// NewSuggestionHandler creates a SuggestionHandler.
func NewSuggestionHandler(gate *suggest.Gate) *SuggestionHandler {
	return &SuggestionHandler{gate: gate}
}

// List handles GET /api/v1/suggestions with optional state, document and
// confidence-range filters.
func (h *SuggestionHandler) List(c *gin.Context) {
	tenantID, _, ok := extractAuthContext(c)
	if !ok {
		return
	}

	filter := port.SuggestionFilter{
		State: domain.SuggestionState(c.Query("state")),
	}
	if raw := c.Query("document_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document_id filter")
			return
		}
		filter.DocumentID = &id
	}
	if raw := c.Query("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_FILTER", "min_confidence must be a number")
			return
		}
		filter.MinConfidence = &v
	}
	if raw := c.Query("max_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_FILTER", "max_confidence must be a number")
			return
		}
		filter.MaxConfidence = &v
	}

	offset, limit := pagination(c)
	suggestions, total, err := h.gate.List(c.Request.Context(), tenantID, filter, offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, suggestions, PagMeta{Total: total, Offset: offset, Limit: limit})
}

type decideRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// Decide handles POST /api/v1/suggestions/:id/decide.
func (h *SuggestionHandler) Decide(c *gin.Context) {
	tenantID, userID, ok := extractAuthContext(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid suggestion id")
		return
	}

	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "approved is required")
		return
	}

	s, err := h.gate.Decide(c.Request.Context(), tenantID, id, *req.Approved, userID)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, s)
}

type decideBatchRequest struct {
	IDs      []uuid.UUID `json:"ids" binding:"required"`
	Approved *bool       `json:"approved" binding:"required"`
}

// DecideBatch handles POST /api/v1/suggestions/decide-batch. Items are
// decided independently; the response tallies successes and failures.
func (h *SuggestionHandler) DecideBatch(c *gin.Context) {
	tenantID, userID, ok := extractAuthContext(c)
	if !ok {
		return
	}

	var req decideBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "ids and approved are required")
		return
	}

	outcome := h.gate.DecideBatch(c.Request.Context(), tenantID, req.IDs, *req.Approved, userID)
	RespondOK(c, outcome)
}

// Stats handles GET /api/v1/suggestions/stats.
func (h *SuggestionHandler) Stats(c *gin.Context) {
	tenantID, _, ok := extractAuthContext(c)
	if !ok {
		return
	}

	stats, err := h.gate.Stats(c.Request.Context(), tenantID)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, stats)
}

func pagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return offset, limit
}
