package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"facturio/internal/classify"
	"facturio/internal/config"
	"facturio/internal/domain"
	"facturio/internal/metrics"
	"facturio/internal/pattern"
	"facturio/internal/port"
	"facturio/internal/prompt"
	"facturio/internal/provider"
	"facturio/internal/rules"
	"facturio/internal/suggest"
)

// Pipeline orchestrates a document's path through classification, the
// pattern cache, provider extraction and the rule engine.
type Pipeline struct {
	docs        port.DocumentRepository
	cache       *pattern.Cache
	classifier  *classify.Classifier
	gateway     port.ProviderGateway
	catalog     *prompt.Catalog
	rules       *rules.Engine
	gate        *suggest.Gate
	emitter     port.EventEmitter
	metrics     *metrics.Metrics
	cfg         config.PipelineConfig
	extractorID string
	now         func() time.Time
	sleep       func(time.Duration)
}

// NewPipeline wires the orchestrator.
func NewPipeline(
	docs port.DocumentRepository,
	cache *pattern.Cache,
	classifier *classify.Classifier,
	gateway port.ProviderGateway,
	catalog *prompt.Catalog,
	engine *rules.Engine,
	gate *suggest.Gate,
	emitter port.EventEmitter,
	m *metrics.Metrics,
	cfg config.PipelineConfig,
	extractorID string,
) *Pipeline {
	return &Pipeline{
		docs:        docs,
		cache:       cache,
		classifier:  classifier,
		gateway:     gateway,
		catalog:     catalog,
		rules:       engine,
		gate:        gate,
		emitter:     emitter,
		metrics:     m,
		cfg:         cfg,
		extractorID: extractorID,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Submit registers a document for processing. Submission is idempotent per
// content hash: resubmitting completed text is served from the exact cache,
// and text still in flight returns the existing document as-is, both with
// created == false.
func (p *Pipeline) Submit(ctx context.Context, tenantID uuid.UUID, rawText string) (*domain.Document, bool, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, false, domain.ErrEmptyDocument
	}

	hash := domain.ContentHash(rawText)
	existing, err := p.docs.GetByContentHash(ctx, tenantID, hash)
	if err == nil {
		return p.serveExisting(ctx, existing), false, nil
	}
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		return nil, false, err
	}

	now := p.now()
	doc := &domain.Document{
		ID:          uuid.New(),
		TenantID:    tenantID,
		RawText:     rawText,
		ContentHash: hash,
		State:       domain.DocStateReceived,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.docs.Create(ctx, doc); err != nil {
		// A concurrent submit may have won the unique constraint race.
		if dup, lookupErr := p.docs.GetByContentHash(ctx, tenantID, hash); lookupErr == nil {
			return p.serveExisting(ctx, dup), false, nil
		}
		return nil, false, err
	}
	return doc, true, nil
}

// serveExisting resolves a resubmission of known content. A completed
// document counts as a tier-1 hit: the stored exact pattern is touched so the
// hit accounting reflects the avoided provider calls, and the caller sees the
// result as served from the cache. Documents still in flight come back as
// they are.
func (p *Pipeline) serveExisting(ctx context.Context, existing *domain.Document) *domain.Document {
	if existing.State != domain.DocStateCompleted {
		return existing
	}
	if _, ok, err := p.cache.LookupExact(ctx, existing.TenantID, existing.ContentHash); err != nil {
		log.Printf("service.Pipeline: exact lookup for resubmitted %s: %v", existing.ID, err)
	} else if ok {
		served := *existing
		served.ExtractionSource = domain.SourceExactCache
		return &served
	}
	return existing
}

// Get returns a document by id.
func (p *Pipeline) Get(ctx context.Context, tenantID, docID uuid.UUID) (*domain.Document, error) {
	return p.docs.GetByID(ctx, tenantID, docID)
}

// Process claims a RECEIVED document and runs it to a terminal state. A
// concurrent claim loses with domain.ErrAlreadyProcessing.
func (p *Pipeline) Process(ctx context.Context, tenantID, docID uuid.UUID) error {
	doc, err := p.docs.GetByID(ctx, tenantID, docID)
	if err != nil {
		return err
	}
	if err := p.docs.Transition(ctx, tenantID, docID, domain.DocStateReceived, domain.DocStateClassifying); err != nil {
		return err
	}
	doc.State = domain.DocStateClassifying
	p.ProcessClaimed(ctx, doc)
	return nil
}

// ProcessClaimed runs an already-claimed document (state CLASSIFYING) to a
// terminal state. All failures resolve into FAILED with an error kind; only
// infrastructure errors around state persistence are logged and abandoned
// for the next claim cycle.
func (p *Pipeline) ProcessClaimed(ctx context.Context, doc *domain.Document) {
	start := p.now()
	p.metrics.ClaimDocument()
	defer p.metrics.ReleaseDocument()

	doc.Attempts++
	snap := p.catalog.Snapshot(doc.TenantID)

	// Tier 1: an identical document completed before. Skips both the
	// classifier and the extractor.
	if hit, ok, err := p.cache.LookupExact(ctx, doc.TenantID, doc.ContentHash); err != nil {
		log.Printf("service.Pipeline: exact lookup for %s: %v", doc.ID, err)
	} else if ok {
		doc.DocumentType = hit.DocumentType
		doc.Subtypes = hit.Subtypes
		doc.ClassificationConfidence = hit.ClassificationConfidence

		var fields domain.ExtractedFields
		if err := json.Unmarshal(hit.Fields, &fields); err != nil {
			log.Printf("service.Pipeline: corrupt exact hit for %s, falling through: %v", doc.ID, err)
		} else {
			if err := p.docs.Transition(ctx, doc.TenantID, doc.ID, domain.DocStateClassifying, domain.DocStateExtracting); err != nil {
				log.Printf("service.Pipeline: transition %s to EXTRACTING: %v", doc.ID, err)
				return
			}
			p.finalize(ctx, doc, &fields, domain.SourceExactCache, hit.PatternID, start)
			return
		}
	}

	// Classification, unless a retry chose to reuse the previous type.
	if !p.hasUsableType(doc) {
		if failed := p.classifyWithRetry(ctx, doc, snap, start); failed {
			return
		}
	}

	if err := p.docs.Transition(ctx, doc.TenantID, doc.ID, domain.DocStateClassifying, domain.DocStateExtracting); err != nil {
		log.Printf("service.Pipeline: transition %s to EXTRACTING: %v", doc.ID, err)
		return
	}

	// Tier 2: a trusted vendor template for this issuer/type pair.
	if hit, ok, err := p.cache.LookupTemplate(ctx, doc.TenantID, doc.RawText, doc.DocumentType); err != nil {
		log.Printf("service.Pipeline: template lookup for %s: %v", doc.ID, err)
	} else if ok {
		p.finalize(ctx, doc, hit.Fields, domain.SourceTemplateCache, hit.PatternID, start)
		return
	}

	// Provider extraction.
	fields, err := p.extractWithRetry(ctx, doc, snap)
	if err != nil {
		kind := domain.ErrKindExtractionUnavailable
		if errors.Is(err, domain.ErrMalformedResponse) {
			kind = domain.ErrKindMalformedResponse
		}
		p.fail(ctx, doc, kind, err.Error(), start)
		return
	}

	p.finalize(ctx, doc, fields, domain.SourceProviderCall, uuid.Nil, start)
}

// hasUsableType reports whether the document carries a classification a
// reuse-type retry can trust.
func (p *Pipeline) hasUsableType(doc *domain.Document) bool {
	return domain.KnownDocumentTypes[doc.DocumentType] && doc.ClassificationConfidence > 0
}

func (p *Pipeline) classifyWithRetry(ctx context.Context, doc *domain.Document, snap *prompt.Snapshot, start time.Time) (failed bool) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.ClassifyAttempts; attempt++ {
		if attempt > 0 {
			p.sleep(p.retryDelay(lastErr, attempt))
		}
		result, err := p.classifier.Classify(ctx, snap, doc.RawText)
		if err != nil {
			lastErr = err
			log.Printf("service.Pipeline: classify %s attempt %d: %v", doc.ID, attempt+1, err)
			continue
		}

		doc.DocumentType = result.Type
		doc.ClassificationConfidence = result.Confidence
		if len(result.Subtypes) > 0 {
			if raw, err := json.Marshal(result.Subtypes); err == nil {
				doc.Subtypes = raw
			}
		}
		doc.UpdatedAt = p.now()
		if err := p.docs.UpdateClassification(ctx, doc); err != nil {
			log.Printf("service.Pipeline: persisting classification for %s: %v", doc.ID, err)
		}
		return false
	}

	kind := domain.ErrKindClassificationUnavailable
	if errors.Is(lastErr, domain.ErrMalformedResponse) {
		kind = domain.ErrKindMalformedResponse
	}
	p.fail(ctx, doc, kind, fmt.Sprintf("classification exhausted %d attempts: %v", p.cfg.ClassifyAttempts, lastErr), start)
	return true
}

// extractWithRetry calls the extraction provider with the configured retry
// budget. A malformed completion is retried exactly once against the same
// provider before giving up.
func (p *Pipeline) extractWithRetry(ctx context.Context, doc *domain.Document, snap *prompt.Snapshot) (*domain.ExtractedFields, error) {
	_, promptText := snap.Extractor(doc.DocumentType, doc.RawText)

	var lastErr error
	malformedRetried := false
	for attempt := 0; attempt < p.cfg.ExtractAttempts; attempt++ {
		if attempt > 0 {
			p.sleep(p.retryDelay(lastErr, attempt))
		}
		completion, err := p.gateway.Call(ctx, p.extractorID, promptText)
		if err != nil {
			lastErr = err
			log.Printf("service.Pipeline: extract %s attempt %d: %v", doc.ID, attempt+1, err)
			continue
		}

		fields, err := parseExtraction(completion)
		if err != nil {
			lastErr = err
			if malformedRetried {
				return nil, lastErr
			}
			malformedRetried = true
			log.Printf("service.Pipeline: malformed extraction for %s, retrying once: %v", doc.ID, err)
			continue
		}
		return fields, nil
	}
	return nil, fmt.Errorf("extraction exhausted %d attempts: %w", p.cfg.ExtractAttempts, lastErr)
}

func parseExtraction(completion string) (*domain.ExtractedFields, error) {
	raw, err := provider.ExtractJSON(completion)
	if err != nil {
		return nil, err
	}
	var fields domain.ExtractedFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return &fields, nil
}

// finalize runs the rule engine, routes uncertain derivations to the
// suggestion gate, persists the result and learns from provider extractions.
func (p *Pipeline) finalize(ctx context.Context, doc *domain.Document, fields *domain.ExtractedFields, source domain.ExtractionSource, patternID uuid.UUID, start time.Time) {
	res := p.rules.Apply(doc.DocumentType, fields)
	final := res.Fields

	if missing := rules.MissingRequired(final); len(missing) > 0 {
		p.fail(ctx, doc, domain.ErrKindRuleEngineInconsistency,
			fmt.Sprintf("required fields missing after rules: %s", strings.Join(missing, ", ")), start)
		return
	}

	// Derivations below the auto-apply threshold are proposed, not written.
	var pid *uuid.UUID
	if patternID != uuid.Nil {
		id := patternID
		pid = &id
	}
	for _, d := range res.Derivations {
		if p.gate.AutoApply(d.Confidence) {
			continue
		}
		// A field rule learned from earlier reviews can vouch for the value.
		if conf, ok, err := p.cache.LookupFieldRule(ctx, doc.TenantID, d.Field, d.Value); err != nil {
			log.Printf("service.Pipeline: field rule lookup %s for %s: %v", d.Field, doc.ID, err)
		} else if ok && p.gate.AutoApply(conf) {
			continue
		}
		revertDerivation(final, d.Field)
		if _, err := p.gate.Submit(ctx, doc.TenantID, &doc.ID, pid, d.Field, d.Value, d.Confidence, d.Reasoning); err != nil {
			log.Printf("service.Pipeline: queueing suggestion %s for %s: %v", d.Field, doc.ID, err)
		}
	}

	rawFields, err := json.Marshal(final)
	if err != nil {
		p.fail(ctx, doc, domain.ErrKindRuleEngineInconsistency, fmt.Sprintf("marshaling fields: %v", err), start)
		return
	}

	now := p.now()
	doc.ExtractedFields = rawFields
	doc.ExtractionSource = source
	doc.State = domain.DocStateCompleted
	doc.CompletedAt = &now
	doc.UpdatedAt = now
	doc.ErrorKind = ""
	doc.ErrorReason = ""
	if len(res.Warnings) > 0 {
		if raw, err := json.Marshal(res.Warnings); err == nil {
			doc.Warnings = raw
		}
	}

	if err := p.docs.SaveResult(ctx, doc); err != nil {
		log.Printf("service.Pipeline: saving result for %s: %v", doc.ID, err)
		return
	}

	if source == domain.SourceProviderCall {
		p.cache.Record(ctx, doc.TenantID, doc, final)
	}

	if err := p.emitter.DocumentCompleted(ctx, doc); err != nil {
		log.Printf("service.Pipeline: emitting completed event for %s: %v", doc.ID, err)
	}
	p.metrics.ObserveDocument("completed", string(source), p.now().Sub(start))
}

func (p *Pipeline) fail(ctx context.Context, doc *domain.Document, kind domain.ErrorKind, reason string, start time.Time) {
	now := p.now()
	doc.State = domain.DocStateFailed
	doc.ErrorKind = kind
	doc.ErrorReason = reason
	doc.UpdatedAt = now

	if err := p.docs.MarkFailed(ctx, doc); err != nil {
		log.Printf("service.Pipeline: marking %s failed: %v", doc.ID, err)
		return
	}
	if err := p.emitter.DocumentFailed(ctx, doc); err != nil {
		log.Printf("service.Pipeline: emitting failed event for %s: %v", doc.ID, err)
	}
	p.metrics.ObserveDocument("failed", string(kind), p.now().Sub(start))
}

// Retry re-enters a FAILED document into the pipeline. The mode decides
// whether the previous classification is reused or discarded; an empty mode
// falls back to the configured default.
func (p *Pipeline) Retry(ctx context.Context, tenantID, docID uuid.UUID, mode domain.RetryMode) (*domain.Document, error) {
	doc, err := p.docs.GetByID(ctx, tenantID, docID)
	if err != nil {
		return nil, err
	}
	if doc.State != domain.DocStateFailed {
		return nil, domain.ErrDocumentNotFailed
	}

	if mode == "" {
		mode = domain.RetryMode(p.cfg.RetryMode)
	}
	if mode == domain.RetryReclassify {
		doc.DocumentType = ""
		doc.ClassificationConfidence = 0
		doc.Subtypes = nil
		doc.UpdatedAt = p.now()
		if err := p.docs.UpdateClassification(ctx, doc); err != nil {
			return nil, err
		}
	}

	if err := p.docs.Transition(ctx, tenantID, docID, domain.DocStateFailed, domain.DocStateReceived); err != nil {
		return nil, err
	}
	doc.State = domain.DocStateReceived
	doc.ErrorKind = ""
	doc.ErrorReason = ""
	return doc, nil
}

func (p *Pipeline) backoff(attempt int) time.Duration {
	d := p.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// retryDelay picks the wait before a retry. A provider that reported being
// over quota also told us when to come back; everything else gets the
// doubling backoff.
func (p *Pipeline) retryDelay(lastErr error, attempt int) time.Duration {
	var perr *provider.Error
	if errors.As(lastErr, &perr) && perr.Kind == provider.KindQuotaExceeded && perr.RetryAfter > 0 {
		return perr.RetryAfter
	}
	return p.backoff(attempt)
}

// revertDerivation undoes a rule engine derivation so the field goes through
// review instead. Derived fields are all monetary.
func revertDerivation(fields *domain.ExtractedFields, field string) {
	switch field {
	case "impuestos":
		fields.Impuestos = decimal.Zero
	case "netoGravado":
		fields.NetoGravado = decimal.Zero
	case "exento":
		fields.Exento = decimal.Zero
	}
}
