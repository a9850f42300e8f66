package port

import (
	"context"

	"github.com/google/uuid"

	"facturio/internal/domain"
)

// SuggestionFilter narrows suggestion listings.
type SuggestionFilter struct {
	State         domain.SuggestionState
	DocumentID    *uuid.UUID
	MinConfidence *float64
	MaxConfidence *float64
}

// SuggestionRepository persists human-review suggestions.
type SuggestionRepository interface {
	Create(ctx context.Context, s *domain.Suggestion) error
	GetByID(ctx context.Context, tenantID, suggestionID uuid.UUID) (*domain.Suggestion, error)

	// FindPending returns the pending suggestion for a document and field
	// target, or domain.ErrSuggestionNotFound. At most one pending suggestion
	// exists per (document, field) pair.
	FindPending(ctx context.Context, tenantID, documentID uuid.UUID, fieldTarget string) (*domain.Suggestion, error)
	List(ctx context.Context, tenantID uuid.UUID, filter SuggestionFilter, offset, limit int) ([]domain.Suggestion, int, error)
	Update(ctx context.Context, s *domain.Suggestion) error
	CountByState(ctx context.Context, tenantID uuid.UUID) (*domain.SuggestionStats, error)
}
