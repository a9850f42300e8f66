package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"facturio/internal/domain"
	"facturio/internal/prompt"
)

// PromptHandler serves prompt catalog administration. Updates are
// admin-only and scoped to the caller's tenant; readers always see a
// consistent catalog version.
type PromptHandler struct {
	catalog *prompt.Catalog
}

// NewPromptHandler creates a PromptHandler.
func NewPromptHandler(catalog *prompt.Catalog) *PromptHandler {
	return &PromptHandler{catalog: catalog}
}

type updatePromptRequest struct {
	Key  string `json:"key" binding:"required"`
	Text string `json:"text" binding:"required"`
}

// Update handles PUT /api/v1/prompts. The override applies only to the
// caller's tenant.
func (h *PromptHandler) Update(c *gin.Context) {
	tenantID, _, ok := extractAuthContext(c)
	if !ok {
		return
	}

	var req updatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "key and text are required")
		return
	}

	version, err := h.catalog.Update(tenantID, req.Key, req.Text)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"key": req.Key, "version": version})
}

// Resolve handles GET /api/v1/prompts/resolve?document_type=T. It reports
// which prompt key the pipeline would use for the type, without rendering
// any document text into it.
func (h *PromptHandler) Resolve(c *gin.Context) {
	tenantID, _, ok := extractAuthContext(c)
	if !ok {
		return
	}

	docType := domain.DocumentType(c.Query("document_type"))
	if docType == "" {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "document_type is required")
		return
	}

	snap := h.catalog.Snapshot(tenantID)
	key, _ := snap.Extractor(docType, "")
	RespondOK(c, gin.H{
		"document_type": docType,
		"prompt_key":    key,
		"version":       snap.Version(),
	})
}

// Keys handles GET /api/v1/prompts.
func (h *PromptHandler) Keys(c *gin.Context) {
	RespondOK(c, gin.H{
		"keys":    h.catalog.Keys(),
		"version": h.catalog.Version(),
	})
}
