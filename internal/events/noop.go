package events

import (
	"context"

	"facturio/internal/domain"
)

// NoopEmitter discards events. Used when no broker is configured.
type NoopEmitter struct{}

func (NoopEmitter) DocumentCompleted(ctx context.Context, doc *domain.Document) error { return nil }
func (NoopEmitter) DocumentFailed(ctx context.Context, doc *domain.Document) error    { return nil }
func (NoopEmitter) Close()                                                            {}
