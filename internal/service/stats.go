package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"facturio/internal/config"
	"facturio/internal/domain"
	"facturio/internal/port"
)

// StatsService derives cache effectiveness numbers from document records.
// Read-only; it never mutates pipeline state.
type StatsService struct {
	docs        port.DocumentRepository
	patterns    port.PatternRepository
	cfg         config.StatsConfig
	topPatterns int
	now         func() time.Time
}

// NewStatsService creates a StatsService.
func NewStatsService(docs port.DocumentRepository, patterns port.PatternRepository, cfg config.StatsConfig, topPatterns int) *StatsService {
	return &StatsService{
		docs:        docs,
		patterns:    patterns,
		cfg:         cfg,
		topPatterns: topPatterns,
		now:         time.Now,
	}
}

// CacheStats summarizes cache hits and estimated savings for the period.
// Savings count avoided provider calls: an exact hit avoids two (classifier
// plus extractor), a template hit avoids one.
func (s *StatsService) CacheStats(ctx context.Context, tenantID uuid.UUID, periodDays int) (*domain.CacheStats, error) {
	if periodDays <= 0 {
		periodDays = s.cfg.DefaultPeriodDays
	}
	since := s.now().AddDate(0, 0, -periodDays)

	counts, err := s.docs.CountBySource(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}

	// Exact hits are served at submit time without creating a new document
	// row, so they are counted from the pattern's hit counter rather than
	// from document sources.
	exact, err := s.patterns.SumHits(ctx, tenantID, domain.PatternExactDocument, since)
	if err != nil {
		return nil, err
	}
	template := counts[domain.SourceTemplateCache]
	providerCalls := counts[domain.SourceProviderCall]
	total := exact + template + providerCalls

	stats := &domain.CacheStats{
		TotalRequests: total,
		ExactHits:     exact,
		TemplateHits:  template,
		ProviderCalls: providerCalls,
	}
	if total > 0 {
		stats.HitRate = float64(exact+template) / float64(total)
	}

	avoidedCalls := exact*2 + template
	stats.EstimatedSavingsUSD = decimal.NewFromFloat(s.cfg.CostPerCallUSD).
		Mul(decimal.NewFromInt(int64(avoidedCalls))).Round(2)
	stats.EstimatedSavingsSecs = float64(avoidedCalls) * s.cfg.SecondsPerCall

	top, err := s.patterns.TopByHits(ctx, tenantID, s.topPatterns)
	if err != nil {
		return nil, err
	}
	// Payloads can hold extracted customer data; the stats surface only needs
	// the pattern's shape and usage.
	for i := range top {
		top[i].Payload = nil
	}
	stats.TopPatterns = top

	return stats, nil
}
