package provider

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"facturio/internal/config"
	"facturio/internal/metrics"
	"facturio/internal/port"
)

// Gateway implements port.ProviderGateway. It fronts the configured backends
// with a per-provider rate limiter and circuit breaker, and records call
// metrics. The gateway performs exactly one upstream call per Call; retry
// policy lives in the pipeline.
type Gateway struct {
	metrics *metrics.Metrics

	mu       sync.RWMutex
	backends map[string]*backend
}

type backend struct {
	provider port.Provider
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[string]
}

// NewGateway creates a Gateway over the given providers keyed by provider id.
func NewGateway(providers map[string]port.Provider, cfgs map[string]config.ProviderBackendConfig, m *metrics.Metrics) *Gateway {
	g := &Gateway{
		metrics:  m,
		backends: make(map[string]*backend),
	}
	for id, p := range providers {
		cfg := cfgs[id]
		rps := cfg.RPS
		if rps <= 0 {
			rps = 2.0
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.backends[id] = &backend{
			provider: p,
			limiter:  rate.NewLimiter(rate.Limit(rps), burst),
			breaker:  newBreaker(id),
		}
	}
	return g
}

func newBreaker(id string) *gobreaker.CircuitBreaker[string] {
	settings := gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("provider.Gateway: breaker %s %s -> %s", name, from.String(), to.String())
		},
	}
	return gobreaker.NewCircuitBreaker[string](settings)
}

// Call sends a prompt through the named provider. Failures come back as
// *provider.Error so callers can branch on the kind.
func (g *Gateway) Call(ctx context.Context, providerID string, prompt string) (string, error) {
	g.mu.RLock()
	b, ok := g.backends[providerID]
	g.mu.RUnlock()
	if !ok {
		return "", NewUnavailableError(providerID, fmt.Errorf("provider not configured: %s", providerID))
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return "", NewTimeoutError(providerID, err)
	}

	start := time.Now()
	completion, err := b.breaker.Execute(func() (string, error) {
		return b.provider.Complete(ctx, prompt)
	})
	dur := time.Since(start)

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = NewUnavailableError(providerID, fmt.Errorf("circuit open: %w", err))
		}
		g.metrics.ObserveProviderCall(providerID, string(KindOf(err)), dur)
		return "", err
	}

	g.metrics.ObserveProviderCall(providerID, "ok", dur)
	return completion, nil
}
