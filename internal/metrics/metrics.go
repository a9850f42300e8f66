package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the processing pipeline. A
// dedicated registry keeps the /metrics surface limited to what this service
// exposes on purpose.
type Metrics struct {
	registry *prometheus.Registry

	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	documentsTotal   *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	suggestionsTotal *prometheus.CounterVec
	queueDepth       prometheus.Gauge
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	providerCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facturio",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total language-model calls by provider and outcome.",
		},
		[]string{"provider", "status"},
	)
	providerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "facturio",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Language-model call duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider"},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facturio",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Pattern cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facturio",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Documents reaching a terminal state, by outcome.",
		},
		[]string{"status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "facturio",
			Subsystem: "pipeline",
			Name:      "process_duration_seconds",
			Help:      "End-to-end document processing duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	suggestionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facturio",
			Subsystem: "suggestions",
			Name:      "total",
			Help:      "Suggestions created or decided, by transition.",
		},
		[]string{"transition"},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "facturio",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Documents claimed and currently being processed.",
		},
	)

	registry.MustRegister(
		providerCalls, providerDuration, cacheLookups,
		documentsTotal, processDuration, suggestionsTotal, queueDepth,
	)

	return &Metrics{
		registry:         registry,
		providerCalls:    providerCalls,
		providerDuration: providerDuration,
		cacheLookups:     cacheLookups,
		documentsTotal:   documentsTotal,
		processDuration:  processDuration,
		suggestionsTotal: suggestionsTotal,
		queueDepth:       queueDepth,
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveProviderCall(provider, status string, dur time.Duration) {
	m.providerCalls.WithLabelValues(provider, status).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(dur.Seconds())
}

func (m *Metrics) ObserveCacheLookup(tier, result string) {
	m.cacheLookups.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) ObserveDocument(status, source string, dur time.Duration) {
	m.documentsTotal.WithLabelValues(status).Inc()
	m.processDuration.WithLabelValues(source).Observe(dur.Seconds())
}

func (m *Metrics) ObserveSuggestion(transition string) {
	m.suggestionsTotal.WithLabelValues(transition).Inc()
}

func (m *Metrics) ClaimDocument()   { m.queueDepth.Inc() }
func (m *Metrics) ReleaseDocument() { m.queueDepth.Dec() }
