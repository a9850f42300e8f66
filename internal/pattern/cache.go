package pattern

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"facturio/internal/config"
	"facturio/internal/domain"
	"facturio/internal/metrics"
	"facturio/internal/port"
)

// Templates whose confidence decays below this are deactivated rather than
// left to produce near-random extractions.
const minActiveConfidence = 0.3

// ExactPayload is the tier-1 pattern payload: a full replay of a previously
// completed document.
type ExactPayload struct {
	DocumentType             domain.DocumentType `json:"documentType"`
	Subtypes                 json.RawMessage     `json:"subtypes,omitempty"`
	ClassificationConfidence float64             `json:"classificationConfidence"`
	Fields                   json.RawMessage     `json:"fields"`
}

// ExactHit is a tier-1 cache hit.
type ExactHit struct {
	PatternID                uuid.UUID
	DocumentType             domain.DocumentType
	Subtypes                 json.RawMessage
	ClassificationConfidence float64
	Fields                   json.RawMessage
}

// TemplateHit is a tier-2 cache hit.
type TemplateHit struct {
	PatternID  uuid.UUID
	Confidence float64
	Fields     *domain.ExtractedFields
}

// Cache is the two-tier pattern cache. Tier 1 replays exact documents by
// content hash; tier 2 applies learned vendor templates. All confidence
// bookkeeping lives here.
type Cache struct {
	repo    port.PatternRepository
	metrics *metrics.Metrics
	cfg     config.CacheConfig
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCache creates a Cache over the given pattern repository.
func NewCache(repo port.PatternRepository, m *metrics.Metrics, cfg config.CacheConfig) *Cache {
	return &Cache{
		repo:    repo,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		locks:   map[string]*sync.Mutex{},
	}
}

// LookupExact checks tier 1 for a previously completed document with the
// same content hash.
func (c *Cache) LookupExact(ctx context.Context, tenantID uuid.UUID, contentHash string) (*ExactHit, bool, error) {
	p, err := c.repo.GetBySignature(ctx, tenantID, domain.PatternExactDocument, contentHash)
	if err != nil {
		if errors.Is(err, domain.ErrPatternNotFound) {
			c.metrics.ObserveCacheLookup("exact", "miss")
			return nil, false, nil
		}
		return nil, false, err
	}

	var payload ExactPayload
	if err := json.Unmarshal(p.Payload, &payload); err != nil {
		log.Printf("pattern.Cache: corrupt exact payload %s, deactivating: %v", p.ID, err)
		_ = c.repo.Deactivate(ctx, tenantID, p.ID)
		c.metrics.ObserveCacheLookup("exact", "miss")
		return nil, false, nil
	}

	c.touch(ctx, tenantID, p)
	c.metrics.ObserveCacheLookup("exact", "hit")
	return &ExactHit{
		PatternID:                p.ID,
		DocumentType:             payload.DocumentType,
		Subtypes:                 payload.Subtypes,
		ClassificationConfidence: payload.ClassificationConfidence,
		Fields:                   payload.Fields,
	}, true, nil
}

// LookupTemplate checks tier 2 for an active vendor template matching the
// document's issuer and classified type. Templates below the confidence
// threshold, and templates that fail to locate the required fields in this
// document, both count as misses.
func (c *Cache) LookupTemplate(ctx context.Context, tenantID uuid.UUID, rawText string, docType domain.DocumentType) (*TemplateHit, bool, error) {
	cuit := DetectCUIT(rawText)
	if cuit == "" {
		c.metrics.ObserveCacheLookup("template", "miss")
		return nil, false, nil
	}

	sig := domain.VendorSignature(cuit, docType)
	p, err := c.repo.GetBySignature(ctx, tenantID, domain.PatternVendorTemplate, sig)
	if err != nil {
		if errors.Is(err, domain.ErrPatternNotFound) {
			c.metrics.ObserveCacheLookup("template", "miss")
			return nil, false, nil
		}
		return nil, false, err
	}

	if p.Confidence < c.cfg.TemplateThreshold {
		c.metrics.ObserveCacheLookup("template", "low_confidence")
		return nil, false, nil
	}

	var payload TemplatePayload
	if err := json.Unmarshal(p.Payload, &payload); err != nil {
		log.Printf("pattern.Cache: corrupt template payload %s, deactivating: %v", p.ID, err)
		_ = c.repo.Deactivate(ctx, tenantID, p.ID)
		c.metrics.ObserveCacheLookup("template", "miss")
		return nil, false, nil
	}

	fields, ok := payload.Apply(rawText)
	if !ok {
		c.metrics.ObserveCacheLookup("template", "apply_failed")
		return nil, false, nil
	}

	c.touch(ctx, tenantID, p)
	c.metrics.ObserveCacheLookup("template", "hit")
	return &TemplateHit{
		PatternID:  p.ID,
		Confidence: p.Confidence,
		Fields:     fields,
	}, true, nil
}

// Record learns from a successful provider extraction: it stores the exact
// replay pattern and creates or reinforces the vendor template. Cache write
// failures are logged, never propagated; losing a learning opportunity must
// not fail a completed document.
func (c *Cache) Record(ctx context.Context, tenantID uuid.UUID, doc *domain.Document, fields *domain.ExtractedFields) {
	unlock := c.lock(tenantID.String() + "|" + doc.ContentHash)
	if err := c.recordExact(ctx, tenantID, doc); err != nil {
		log.Printf("pattern.Cache: recording exact pattern for %s: %v", doc.ID, err)
	}
	unlock()

	cuit := fields.CUIT
	if cuit == "" {
		cuit = DetectCUIT(doc.RawText)
	}
	if cuit == "" || doc.DocumentType == domain.DocTypeUnknown {
		return
	}
	sig := domain.VendorSignature(cuit, doc.DocumentType)

	unlock = c.lock(tenantID.String() + "|" + sig)
	defer unlock()
	if err := c.recordTemplate(ctx, tenantID, sig, doc, fields); err != nil {
		log.Printf("pattern.Cache: recording template %s for %s: %v", sig, doc.ID, err)
	}
}

func (c *Cache) recordExact(ctx context.Context, tenantID uuid.UUID, doc *domain.Document) error {
	_, err := c.repo.GetBySignature(ctx, tenantID, domain.PatternExactDocument, doc.ContentHash)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrPatternNotFound) {
		return err
	}

	payload, err := json.Marshal(ExactPayload{
		DocumentType:             doc.DocumentType,
		Subtypes:                 doc.Subtypes,
		ClassificationConfidence: doc.ClassificationConfidence,
		Fields:                   doc.ExtractedFields,
	})
	if err != nil {
		return fmt.Errorf("marshaling exact payload: %w", err)
	}

	now := c.now()
	return c.repo.Create(ctx, &domain.Pattern{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Kind:       domain.PatternExactDocument,
		Signature:  doc.ContentHash,
		Payload:    payload,
		HitCount:   0,
		Confidence: 1.0,
		Active:     true,
		LastUsedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (c *Cache) recordTemplate(ctx context.Context, tenantID uuid.UUID, sig string, doc *domain.Document, fields *domain.ExtractedFields) error {
	existing, err := c.repo.GetBySignature(ctx, tenantID, domain.PatternVendorTemplate, sig)
	if errors.Is(err, domain.ErrPatternNotFound) {
		payload, ok := DeriveTemplate(doc.RawText, fields, doc.DocumentType)
		if !ok {
			return nil
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling template payload: %w", err)
		}
		now := c.now()
		return c.repo.Create(ctx, &domain.Pattern{
			ID:         uuid.New(),
			TenantID:   tenantID,
			Kind:       domain.PatternVendorTemplate,
			Signature:  sig,
			Payload:    raw,
			HitCount:   0,
			Confidence: c.cfg.InitialTemplate,
			Active:     true,
			LastUsedAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		var payload TemplatePayload
		if err := json.Unmarshal(existing.Payload, &payload); err != nil {
			return c.repo.Deactivate(ctx, tenantID, existing.ID)
		}

		agreement := c.agreement(&payload, doc.RawText, fields)
		alpha := c.cfg.LearningRate
		existing.Confidence = existing.Confidence*(1-alpha) + agreement*alpha
		existing.UpdatedAt = c.now()

		if existing.Confidence < minActiveConfidence {
			return c.repo.Deactivate(ctx, tenantID, existing.ID)
		}

		err := c.repo.Update(ctx, existing, existing.HitCount)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrPatternConflict) || attempt >= c.cfg.ConflictRetries {
			return err
		}
		existing, err = c.repo.GetBySignature(ctx, tenantID, domain.PatternVendorTemplate, sig)
		if err != nil {
			return err
		}
	}
}

// agreement measures how well the stored template reproduces what the
// provider extracted from the same document.
func (c *Cache) agreement(payload *TemplatePayload, rawText string, fields *domain.ExtractedFields) float64 {
	applied, ok := payload.Apply(rawText)
	if !ok {
		return 0
	}

	compared, matched := 0, 0
	check := func(got, want string) {
		if want == "" {
			return
		}
		compared++
		if got == want {
			matched++
		}
	}
	check(applied.Fecha, fields.Fecha)
	check(applied.CUIT, fields.CUIT)
	check(applied.NumeroComprobante, fields.NumeroComprobante)
	check(applied.CAE, fields.CAE)
	if !fields.Importe.IsZero() {
		compared++
		if applied.Importe.Equal(fields.Importe) {
			matched++
		}
	}

	if compared == 0 {
		return 0
	}
	return float64(matched) / float64(compared)
}

// Feedback folds a human review decision into a pattern's confidence: an
// approval counts as full agreement, a rejection as none. Deactivates the
// pattern when its confidence decays below the floor.
func (c *Cache) Feedback(ctx context.Context, tenantID, patternID uuid.UUID, approved bool) error {
	agreement := 0.0
	if approved {
		agreement = 1.0
	}

	for attempt := 0; ; attempt++ {
		p, err := c.repo.GetByID(ctx, tenantID, patternID)
		if err != nil {
			return err
		}

		alpha := c.cfg.LearningRate
		p.Confidence = p.Confidence*(1-alpha) + agreement*alpha
		p.UpdatedAt = c.now()

		if p.Confidence < minActiveConfidence {
			return c.repo.Deactivate(ctx, tenantID, p.ID)
		}

		err = c.repo.Update(ctx, p, p.HitCount)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrPatternConflict) || attempt >= c.cfg.ConflictRetries {
			return err
		}
	}
}

// touch bumps a pattern's hit count and last-used timestamp. Best effort: a
// lost increment under concurrent use is acceptable, so conflicts are not
// retried here.
func (c *Cache) touch(ctx context.Context, tenantID uuid.UUID, p *domain.Pattern) {
	expected := p.HitCount
	p.HitCount++
	p.LastUsedAt = c.now()
	p.UpdatedAt = p.LastUsedAt
	if err := c.repo.Update(ctx, p, expected); err != nil && !errors.Is(err, domain.ErrPatternConflict) {
		log.Printf("pattern.Cache: touching pattern %s: %v", p.ID, err)
	}
}

func (c *Cache) lock(key string) func() {
	c.mu.Lock()
	m, ok := c.locks[key]
	if !ok {
		m = &sync.Mutex{}
		c.locks[key] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}
