package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"facturio/internal/domain"
)

// DocumentRepository persists documents and their state machine transitions.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, tenantID, docID uuid.UUID) (*domain.Document, error)
	GetByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*domain.Document, error)

	// Transition atomically moves a document from one state to another.
	// Returns domain.ErrAlreadyProcessing when the document is not in the
	// expected source state, which is how at-most-once claiming is enforced.
	Transition(ctx context.Context, tenantID, docID uuid.UUID, from, to domain.DocumentState) error

	UpdateClassification(ctx context.Context, doc *domain.Document) error
	SaveResult(ctx context.Context, doc *domain.Document) error
	MarkFailed(ctx context.Context, doc *domain.Document) error

	// UpdateFields replaces a completed document's extracted fields, used when
	// an approved suggestion is applied after the fact.
	UpdateFields(ctx context.Context, tenantID, docID uuid.UUID, fields json.RawMessage) error

	ListByState(ctx context.Context, tenantID uuid.UUID, state domain.DocumentState, offset, limit int) ([]domain.Document, int, error)

	// ClaimReceived atomically claims up to limit RECEIVED documents across
	// tenants, transitioning them to CLASSIFYING, and returns the claimed rows.
	ClaimReceived(ctx context.Context, limit int) ([]domain.Document, error)

	// RequeueStale returns in-flight documents (CLASSIFYING or EXTRACTING)
	// whose last update is older than the cutoff back to RECEIVED, so a
	// crashed worker never strands them. Returns the number of rows requeued.
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)

	CountBySource(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[domain.ExtractionSource]int, error)
}
