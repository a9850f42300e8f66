package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"facturio/internal/domain"
)

// PatternRepository persists learned patterns. Only the pattern cache calls
// these methods; everything else goes through the cache's API.
type PatternRepository interface {
	Create(ctx context.Context, p *domain.Pattern) error
	GetByID(ctx context.Context, tenantID, patternID uuid.UUID) (*domain.Pattern, error)

	// GetBySignature returns the active pattern for the signature, or
	// domain.ErrPatternNotFound.
	GetBySignature(ctx context.Context, tenantID uuid.UUID, kind domain.PatternKind, signature string) (*domain.Pattern, error)

	// Update persists hit count, confidence, payload and last-used time.
	// expectedHitCount is an optimistic check: if the stored row no longer
	// matches, the update is rejected with domain.ErrPatternConflict so the
	// cache can re-read and retry.
	Update(ctx context.Context, p *domain.Pattern, expectedHitCount int) error

	Deactivate(ctx context.Context, tenantID, patternID uuid.UUID) error
	TopByHits(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Pattern, error)

	// SumHits totals the hit counts of one pattern kind for patterns used
	// since the given time.
	SumHits(ctx context.Context, tenantID uuid.UUID, kind domain.PatternKind, since time.Time) (int, error)
}
