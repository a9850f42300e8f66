package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"facturio/internal/service"
)

// StatsHandler serves cache effectiveness numbers.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// CacheStats handles GET /api/v1/stats/cache?days=N.
func (h *StatsHandler) CacheStats(c *gin.Context) {
	tenantID, _, ok := extractAuthContext(c)
	if !ok {
		return
	}

	days := 0
	if raw := c.Query("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			RespondError(c, http.StatusBadRequest, "INVALID_FILTER", "days must be a nonnegative integer")
			return
		}
		days = v
	}

	stats, err := h.stats.CacheStats(c.Request.Context(), tenantID, days)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, stats)
}
