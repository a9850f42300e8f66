package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"facturio/internal/config"
	"facturio/internal/domain"
	"facturio/internal/metrics"
	"facturio/internal/pattern"
	"facturio/internal/port"
)

// Gate is the human-review queue for low-confidence inferences. Anything the
// pipeline derives below the auto-apply threshold lands here instead of being
// written into a document silently.
type Gate struct {
	repo    port.SuggestionRepository
	docs    port.DocumentRepository
	cache   *pattern.Cache
	metrics *metrics.Metrics
	cfg     config.SuggestConfig
	now     func() time.Time
}

// NewGate creates a Gate over the given suggestion and document repositories.
func NewGate(repo port.SuggestionRepository, docs port.DocumentRepository, cache *pattern.Cache, m *metrics.Metrics, cfg config.SuggestConfig) *Gate {
	return &Gate{
		repo:    repo,
		docs:    docs,
		cache:   cache,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

// AutoApply reports whether an inference at this confidence can be applied
// without review.
func (g *Gate) AutoApply(confidence float64) bool {
	return confidence >= g.cfg.AutoApplyThreshold
}

// Submit queues a proposed field value for review. At most one pending
// suggestion exists per (document, field) pair; resubmitting while one is
// still open returns the open one.
func (g *Gate) Submit(ctx context.Context, tenantID uuid.UUID, documentID, patternID *uuid.UUID, fieldTarget string, value interface{}, confidence float64, reasoning string) (*domain.Suggestion, error) {
	if documentID != nil {
		existing, err := g.repo.FindPending(ctx, tenantID, *documentID, fieldTarget)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrSuggestionNotFound) {
			return nil, err
		}
	}

	proposed, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	now := g.now()
	s := &domain.Suggestion{
		ID:            uuid.New(),
		TenantID:      tenantID,
		DocumentID:    documentID,
		PatternID:     patternID,
		FieldTarget:   fieldTarget,
		ProposedValue: proposed,
		Confidence:    confidence,
		Reasoning:     reasoning,
		State:         domain.SuggestionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := g.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	g.metrics.ObserveSuggestion("created")
	return s, nil
}

// Decide resolves a pending suggestion. Approval writes the proposed value
// into the document, then moves the suggestion straight to APPLIED; the
// approve-then-apply split exists in the state set for audit, not as two
// calls. Repeating an already-made decision is a no-op; reversing one is
// rejected with domain.ErrSuggestionDecided.
func (g *Gate) Decide(ctx context.Context, tenantID, id uuid.UUID, approved bool, decidedBy uuid.UUID) (*domain.Suggestion, error) {
	s, err := g.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if s.State != domain.SuggestionPending {
		sameDirection := approved == (s.State == domain.SuggestionApplied || s.State == domain.SuggestionApproved)
		if sameDirection {
			return s, nil
		}
		return nil, domain.ErrSuggestionDecided
	}

	if approved && s.DocumentID != nil && s.FieldTarget != "" {
		if err := g.applyToDocument(ctx, s); err != nil {
			return nil, err
		}
	}

	now := g.now()
	if approved {
		s.State = domain.SuggestionApplied
	} else {
		s.State = domain.SuggestionRejected
	}
	s.DecidedBy = &decidedBy
	s.DecidedAt = &now
	s.UpdatedAt = now

	if err := g.repo.Update(ctx, s); err != nil {
		return nil, err
	}
	g.metrics.ObserveSuggestion(string(s.State))

	// Review outcomes are the learning signal for the pattern that produced
	// the suggestion, and for the field rule covering values of this shape.
	if s.PatternID != nil {
		if err := g.cache.Feedback(ctx, tenantID, *s.PatternID, approved); err != nil {
			log.Printf("suggest.Gate: feeding decision back to pattern %s: %v", *s.PatternID, err)
		}
	}
	if s.DocumentID != nil && s.FieldTarget != "" {
		var value string
		if err := json.Unmarshal(s.ProposedValue, &value); err != nil {
			value = string(s.ProposedValue)
		}
		if err := g.cache.ReinforceFieldRule(ctx, tenantID, s.FieldTarget, value, approved); err != nil {
			log.Printf("suggest.Gate: reinforcing field rule for %s: %v", s.FieldTarget, err)
		}
	}

	return s, nil
}

// applyToDocument writes the suggestion's proposed value into the document's
// extracted fields. Runs before the suggestion leaves PENDING, so a failed
// write leaves the suggestion decidable again.
func (g *Gate) applyToDocument(ctx context.Context, s *domain.Suggestion) error {
	doc, err := g.docs.GetByID(ctx, s.TenantID, *s.DocumentID)
	if err != nil {
		return err
	}

	fields := map[string]json.RawMessage{}
	if len(doc.ExtractedFields) > 0 {
		if err := json.Unmarshal(doc.ExtractedFields, &fields); err != nil {
			return fmt.Errorf("decoding extracted fields for %s: %w", doc.ID, err)
		}
	}
	fields[s.FieldTarget] = s.ProposedValue

	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return g.docs.UpdateFields(ctx, s.TenantID, doc.ID, raw)
}

// BatchOutcome tallies one DecideBatch run.
type BatchOutcome struct {
	Decided int              `json:"decided"`
	Failed  int              `json:"failed"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// DecideBatch decides each suggestion independently. One failing item never
// rolls back the others.
func (g *Gate) DecideBatch(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, approved bool, decidedBy uuid.UUID) *BatchOutcome {
	out := &BatchOutcome{Errors: map[string]string{}}
	for _, id := range ids {
		if _, err := g.Decide(ctx, tenantID, id, approved, decidedBy); err != nil {
			out.Failed++
			out.Errors[id.String()] = err.Error()
			continue
		}
		out.Decided++
	}
	if len(out.Errors) == 0 {
		out.Errors = nil
	}
	return out
}

// List returns suggestions matching the filter, plus the total match count.
func (g *Gate) List(ctx context.Context, tenantID uuid.UUID, filter port.SuggestionFilter, offset, limit int) ([]domain.Suggestion, int, error) {
	return g.repo.List(ctx, tenantID, filter, offset, limit)
}

// Stats tallies suggestions per review state.
func (g *Gate) Stats(ctx context.Context, tenantID uuid.UUID) (*domain.SuggestionStats, error) {
	return g.repo.CountByState(ctx, tenantID)
}
