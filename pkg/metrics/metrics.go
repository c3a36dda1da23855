package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeError     = "error"
	OutcomeNotFound  = "not_found"
	OutcomePartial   = "partial"
	OutcomeCancelled = "cancelled"
)

// Cache results
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheShared = "shared" // Joined an in-flight computation
)

// Metrics groups the collectors for one process. A nil *Metrics is valid and
// records nothing, so packages can be used without a registry.
type Metrics struct {
	queryTotal         *prometheus.CounterVec
	queryRetries       *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	cacheRequests      *prometheus.CounterVec
	cacheEvictions     prometheus.Counter
	resolutionTotal    *prometheus.CounterVec
	resolutionDuration prometheus.Histogram
	resolvedNodes      prometheus.Histogram
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sbom_resolver_query_total",
				Help: "Number of SPARQL queries by template and outcome.",
			},
			[]string{"template", "outcome"},
		),
		queryRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sbom_resolver_query_retries_total",
				Help: "Number of retried SPARQL attempts by template.",
			},
			[]string{"template"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sbom_resolver_query_duration_seconds",
				Help:    "Time taken by a SPARQL query including retries.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"template"},
		),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sbom_resolver_cache_requests_total",
				Help: "Number of cache lookups by result.",
			},
			[]string{"result"},
		),
		cacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sbom_resolver_cache_evictions_total",
				Help: "Number of cache entries evicted by TTL or capacity.",
			},
		),
		resolutionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sbom_resolver_resolution_total",
				Help: "Number of dependency resolutions by outcome.",
			},
			[]string{"outcome"},
		),
		resolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sbom_resolver_resolution_duration_seconds",
				Help:    "Time taken to resolve a dependency tree.",
				Buckets: prometheus.DefBuckets,
			},
		),
		resolvedNodes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sbom_resolver_resolved_nodes",
				Help:    "Number of nodes in resolved trees.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.queryTotal,
			m.queryRetries,
			m.queryDuration,
			m.cacheRequests,
			m.cacheEvictions,
			m.resolutionTotal,
			m.resolutionDuration,
			m.resolvedNodes,
		)
	}
	return m
}

// ObserveQuery records one finished query
func (m *Metrics) ObserveQuery(template, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryTotal.WithLabelValues(template, outcome).Inc()
	m.queryDuration.WithLabelValues(template).Observe(d.Seconds())
}

// IncRetry records one retried attempt
func (m *Metrics) IncRetry(template string) {
	if m == nil {
		return
	}
	m.queryRetries.WithLabelValues(template).Inc()
}

// IncCache records a cache lookup result
func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// IncEviction records an evicted cache entry
func (m *Metrics) IncEviction() {
	if m == nil {
		return
	}
	m.cacheEvictions.Inc()
}

// ObserveResolution records one finished resolution
func (m *Metrics) ObserveResolution(outcome string, d time.Duration, nodes int) {
	if m == nil {
		return
	}
	m.resolutionTotal.WithLabelValues(outcome).Inc()
	m.resolutionDuration.Observe(d.Seconds())
	if nodes > 0 {
		m.resolvedNodes.Observe(float64(nodes))
	}
}
