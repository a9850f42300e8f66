package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"facturio/internal/domain"
	"facturio/internal/service"
)

// DocumentHandler serves document submission, status and retry endpoints.
type DocumentHandler struct {
	pipeline *service.Pipeline
}

// NewDocumentHandler creates a DocumentHandler.
func NewDocumentHandler(pipeline *service.Pipeline) *DocumentHandler {
	return &DocumentHandler{pipeline: pipeline}
}

type submitDocumentRequest struct {
	RawText string `json:"raw_text" binding:"required"`
}

// Submit handles POST /api/v1/documents. Submission is idempotent per
// content hash: a duplicate returns the existing document with 200 instead
// of 202.
func (h *DocumentHandler) Submit(c *gin.Context) {
	tenantID, _, ok := extractAuthContext(c)
	if !ok {
		return
	}

	var req submitDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "raw_text is required")
		return
	}

	doc, created, err := h.pipeline.Submit(c.Request.Context(), tenantID, req.RawText)
	if err != nil {
		HandleError(c, err)
		return
	}

	view := documentView(doc)
	if created {
		RespondAccepted(c, view)
		return
	}
	RespondOK(c, view)
}

// Get handles GET /api/v1/documents/:id. The response is an atomic snapshot:
// a document never shows COMPLETED without its fields, or fields without the
// terminal state.
func (h *DocumentHandler) Get(c *gin.Context) {
	tenantID, _, ok := extractAuthContext(c)
	if !ok {
		return
	}

	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document id")
		return
	}

	doc, err := h.pipeline.Get(c.Request.Context(), tenantID, docID)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, documentView(doc))
}

type retryDocumentRequest struct {
	Mode string `json:"mode"`
}

// Retry handles POST /api/v1/documents/:id/retry.
func (h *DocumentHandler) Retry(c *gin.Context) {
	tenantID, _, ok := extractAuthContext(c)
	if !ok {
		return
	}

	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document id")
		return
	}

	var req retryDocumentRequest
	_ = c.ShouldBindJSON(&req)

	mode := domain.RetryMode(req.Mode)
	if mode != "" && mode != domain.RetryReclassify && mode != domain.RetryReuseType {
		RespondError(c, http.StatusBadRequest, "INVALID_MODE", "mode must be reclassify or reuse_type")
		return
	}

	doc, err := h.pipeline.Retry(c.Request.Context(), tenantID, docID, mode)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondAccepted(c, documentView(doc))
}

// documentView shapes a document for API responses. Raw text is echoed only
// through its hash; callers already have the text they submitted.
func documentView(doc *domain.Document) gin.H {
	view := gin.H{
		"id":           doc.ID,
		"content_hash": doc.ContentHash,
		"state":        doc.State,
		"attempts":     doc.Attempts,
		"created_at":   doc.CreatedAt,
		"updated_at":   doc.UpdatedAt,
	}
	if doc.DocumentType != "" {
		view["document_type"] = doc.DocumentType
		view["classification_confidence"] = doc.ClassificationConfidence
	}
	if len(doc.Subtypes) > 0 {
		view["subtypes"] = doc.Subtypes
	}
	if doc.State == domain.DocStateCompleted {
		view["extracted_fields"] = doc.ExtractedFields
		view["extraction_source"] = doc.ExtractionSource
		view["completed_at"] = doc.CompletedAt
		if len(doc.Warnings) > 0 {
			view["warnings"] = doc.Warnings
		}
	}
	if doc.State == domain.DocStateFailed {
		view["error_kind"] = doc.ErrorKind
		view["error_reason"] = doc.ErrorReason
	}
	return view
}
