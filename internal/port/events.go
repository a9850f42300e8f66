package port

import (
	"context"

	"facturio/internal/domain"
)

// EventEmitter notifies the surrounding system of terminal document
// transitions. Emission failures must never block the pipeline.
type EventEmitter interface {
	DocumentCompleted(ctx context.Context, doc *domain.Document) error
	DocumentFailed(ctx context.Context, doc *domain.Document) error
	Close()
}
