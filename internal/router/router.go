package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"facturio/internal/config"
	"facturio/internal/domain"
	"facturio/internal/handler"
	"facturio/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	cfg *config.Config,
	documentH *handler.DocumentHandler,
	suggestionH *handler.SuggestionHandler,
	statsH *handler.StatsHandler,
	promptH *handler.PromptHandler,
	healthH *handler.HealthHandler,
	metricsHandler http.Handler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// Health and observability
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)
	r.GET("/metrics", gin.WrapH(metricsHandler))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWT))

	// Documents
	documents := v1.Group("/documents")
	documents.POST("", documentH.Submit)
	documents.GET("/:id", documentH.Get)
	documents.POST("/:id/retry", documentH.Retry)

	// Suggestion review queue
	suggestions := v1.Group("/suggestions")
	suggestions.GET("", suggestionH.List)
	suggestions.GET("/stats", suggestionH.Stats)
	suggestions.POST("/decide-batch", suggestionH.DecideBatch)
	suggestions.POST("/:id/decide", suggestionH.Decide)

	// Cache effectiveness
	v1.GET("/stats/cache", statsH.CacheStats)

	// Prompt administration
	prompts := v1.Group("/prompts")
	prompts.GET("", promptH.Keys)
	prompts.GET("/resolve", promptH.Resolve)
	prompts.PUT("", middleware.RequireRole(domain.RoleAdmin), promptH.Update)

	return r
}
