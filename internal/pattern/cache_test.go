package pattern_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturio/internal/config"
	"facturio/internal/domain"
	"facturio/internal/metrics"
	"facturio/internal/pattern"
)

// fakePatternRepo is an in-memory PatternRepository with the same conflict
// semantics as the real one.
type fakePatternRepo struct {
	mu       sync.Mutex
	patterns map[uuid.UUID]*domain.Pattern

	// conflictsLeft forces that many Update calls to fail with
	// ErrPatternConflict before behaving normally.
	conflictsLeft int
}

func newFakePatternRepo() *fakePatternRepo {
	return &fakePatternRepo{patterns: map[uuid.UUID]*domain.Pattern{}}
}

func (r *fakePatternRepo) Create(_ context.Context, p *domain.Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.patterns {
		if existing.TenantID == p.TenantID && existing.Kind == p.Kind && existing.Signature == p.Signature {
			return domain.ErrPatternConflict
		}
	}
	cp := *p
	r.patterns[p.ID] = &cp
	return nil
}

func (r *fakePatternRepo) GetByID(_ context.Context, tenantID, patternID uuid.UUID) (*domain.Pattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[patternID]
	if !ok || p.TenantID != tenantID {
		return nil, domain.ErrPatternNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePatternRepo) GetBySignature(_ context.Context, tenantID uuid.UUID, kind domain.PatternKind, signature string) (*domain.Pattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patterns {
		if p.TenantID == tenantID && p.Kind == kind && p.Signature == signature && p.Active {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPatternNotFound
}

func (r *fakePatternRepo) Update(_ context.Context, p *domain.Pattern, expectedHitCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return domain.ErrPatternConflict
	}
	stored, ok := r.patterns[p.ID]
	if !ok || stored.HitCount != expectedHitCount {
		return domain.ErrPatternConflict
	}
	cp := *p
	r.patterns[p.ID] = &cp
	return nil
}

func (r *fakePatternRepo) Deactivate(_ context.Context, tenantID, patternID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[patternID]
	if !ok || p.TenantID != tenantID {
		return domain.ErrPatternNotFound
	}
	p.Active = false
	return nil
}

func (r *fakePatternRepo) TopByHits(_ context.Context, tenantID uuid.UUID, limit int) ([]domain.Pattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Pattern
	for _, p := range r.patterns {
		if p.TenantID == tenantID && p.Active && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePatternRepo) SumHits(_ context.Context, tenantID uuid.UUID, kind domain.PatternKind, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, p := range r.patterns {
		if p.TenantID == tenantID && p.Kind == kind && p.Active && !p.LastUsedAt.Before(since) {
			sum += p.HitCount
		}
	}
	return sum, nil
}

func (r *fakePatternRepo) bySignature(kind domain.PatternKind, signature string) *domain.Pattern {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patterns {
		if p.Kind == kind && p.Signature == signature {
			return p
		}
	}
	return nil
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		TemplateThreshold: 0.75,
		LearningRate:      0.2,
		InitialTemplate:   0.6,
		ConflictRetries:   3,
	}
}

func newTestCache(repo *fakePatternRepo) *pattern.Cache {
	return pattern.NewCache(repo, metrics.New(), cacheConfig())
}

func completedDoc(tenantID uuid.UUID) *domain.Document {
	fields := extractedFields()
	raw, _ := json.Marshal(fields)
	return &domain.Document{
		ID:                       uuid.New(),
		TenantID:                 tenantID,
		RawText:                  facturaText,
		ContentHash:              domain.ContentHash(facturaText),
		DocumentType:             domain.DocTypeFacturaA,
		Subtypes:                 json.RawMessage(`["SERVICIOS"]`),
		ClassificationConfidence: 0.95,
		ExtractedFields:          raw,
		State:                    domain.DocStateCompleted,
	}
}

func TestLookupExact_Miss(t *testing.T) {
	cache := newTestCache(newFakePatternRepo())
	hit, ok, err := cache.LookupExact(context.Background(), uuid.New(), "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, hit)
}

func TestRecord_ThenLookupExact(t *testing.T) {
	repo := newFakePatternRepo()
	cache := newTestCache(repo)
	tenantID := uuid.New()
	doc := completedDoc(tenantID)

	cache.Record(context.Background(), tenantID, doc, extractedFields())

	hit, ok, err := cache.LookupExact(context.Background(), tenantID, doc.ContentHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.DocTypeFacturaA, hit.DocumentType)
	assert.Equal(t, 0.95, hit.ClassificationConfidence)
	assert.JSONEq(t, string(doc.ExtractedFields), string(hit.Fields))

	// The replay pattern is stored at full confidence and the lookup
	// registered a hit.
	p := repo.bySignature(domain.PatternExactDocument, doc.ContentHash)
	require.NotNil(t, p)
	assert.Equal(t, 1.0, p.Confidence)
	assert.Equal(t, 1, p.HitCount)
}

func TestLookupExact_TenantIsolation(t *testing.T) {
	cache := newTestCache(newFakePatternRepo())
	tenantID := uuid.New()
	doc := completedDoc(tenantID)
	cache.Record(context.Background(), tenantID, doc, extractedFields())

	_, ok, err := cache.LookupExact(context.Background(), uuid.New(), doc.ContentHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupExact_CorruptPayloadDeactivates(t *testing.T) {
	repo := newFakePatternRepo()
	cache := newTestCache(repo)
	tenantID := uuid.New()

	p := &domain.Pattern{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Kind:      domain.PatternExactDocument,
		Signature: "somehash",
		Payload:   json.RawMessage(`{not json`),
		Active:    true,
	}
	require.NoError(t, repo.Create(context.Background(), p))

	_, ok, err := cache.LookupExact(context.Background(), tenantID, "somehash")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, repo.bySignature(domain.PatternExactDocument, "somehash").Active)
}

func TestRecord_CreatesTemplateAtInitialConfidence(t *testing.T) {
	repo := newFakePatternRepo()
	cache := newTestCache(repo)
	tenantID := uuid.New()
	doc := completedDoc(tenantID)

	cache.Record(context.Background(), tenantID, doc, extractedFields())

	sig := domain.VendorSignature("30-71234567-8", domain.DocTypeFacturaA)
	p := repo.bySignature(domain.PatternVendorTemplate, sig)
	require.NotNil(t, p)
	assert.InDelta(t, 0.6, p.Confidence, 1e-9)
	assert.True(t, p.Active)
}

func TestRecord_ReinforcementCrossesThreshold(t *testing.T) {
	repo := newFakePatternRepo()
	cache := newTestCache(repo)
	tenantID := uuid.New()
	doc := completedDoc(tenantID)
	sig := domain.VendorSignature("30-71234567-8", domain.DocTypeFacturaA)

	// Seed at 0.6 and reinforce with three agreeing extractions:
	// 0.6 -> 0.68 -> 0.744 -> 0.7952.
	cache.Record(context.Background(), tenantID, doc, extractedFields())
	want := 0.6
	for i := 0; i < 3; i++ {
		cache.Record(context.Background(), tenantID, doc, extractedFields())
		want = want*0.8 + 1.0*0.2
		p := repo.bySignature(domain.PatternVendorTemplate, sig)
		require.NotNil(t, p)
		assert.InDelta(t, want, p.Confidence, 1e-9)
	}
	assert.Greater(t, want, 0.75)

	// The template is now trusted enough for tier-2 lookups.
	hit, ok, err := cache.LookupTemplate(context.Background(), tenantID, facturaText, domain.DocTypeFacturaA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-03-15", hit.Fields.Fecha)
	assert.Equal(t, "30-71234567-8", hit.Fields.CUIT)
}

func TestLookupTemplate_BelowThresholdIsMiss(t *testing.T) {
	repo := newFakePatternRepo()
	cache := newTestCache(repo)
	tenantID := uuid.New()
	doc := completedDoc(tenantID)

	// A single Record leaves the template at 0.6, below the 0.75 threshold.
	cache.Record(context.Background(), tenantID, doc, extractedFields())

	_, ok, err := cache.LookupTemplate(context.Background(), tenantID, facturaText, domain.DocTypeFacturaA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupTemplate_NoCUITIsMiss(t *testing.T) {
	cache := newTestCache(newFakePatternRepo())
	_, ok, err := cache.LookupTemplate(context.Background(), uuid.New(), "ticket sin cuit", domain.DocTypeTicket)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFeedback_ApprovalRaisesConfidence(t *testing.T) {
	repo := newFakePatternRepo()
	cache := newTestCache(repo)
	tenantID := uuid.New()

	p := seedTemplate(t, repo, tenantID, 0.5)
	require.NoError(t, cache.Feedback(context.Background(), tenantID, p.ID, true))

	updated, err := repo.GetByID(context.Background(), tenantID, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, updated.Confidence, 1e-9)
}

func TestFeedback_RejectionBelowFloorDeactivates(t *testing.T) {
	repo := newFakePatternRepo()
	cache := newTestCache(repo)
	tenantID := uuid.New()

	// 0.35 * 0.8 = 0.28, under the deactivation floor.
	p := seedTemplate(t, repo, tenantID, 0.35)
	require.NoError(t, cache.Feedback(context.Background(), tenantID, p.ID, false))

	_, ok, err := cache.LookupTemplate(context.Background(), tenantID, facturaText, domain.DocTypeFacturaA)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, repo.patterns[p.ID].Active)
}

func TestFeedback_RetriesOnConflict(t *testing.T) {
	repo := newFakePatternRepo()
	cache := newTestCache(repo)
	tenantID := uuid.New()

	p := seedTemplate(t, repo, tenantID, 0.5)
	repo.conflictsLeft = 2

	require.NoError(t, cache.Feedback(context.Background(), tenantID, p.ID, true))
	updated, err := repo.GetByID(context.Background(), tenantID, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, updated.Confidence, 1e-9)
}

func seedTemplate(t *testing.T, repo *fakePatternRepo, tenantID uuid.UUID, confidence float64) *domain.Pattern {
	t.Helper()
	payload, ok := pattern.DeriveTemplate(facturaText, extractedFields(), domain.DocTypeFacturaA)
	require.True(t, ok)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	p := &domain.Pattern{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Kind:       domain.PatternVendorTemplate,
		Signature:  domain.VendorSignature("30-71234567-8", domain.DocTypeFacturaA),
		Payload:    raw,
		Confidence: confidence,
		Active:     true,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}
