package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler and the searches.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	CacheHitsTotal  prometheus.Counter
	ResolutionTotal *prometheus.CounterVec
	SearchesTotal   *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onleihe_requests_total",
			Help: "Total HTTP requests issued to library sites.",
		},
		[]string{"method"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onleihe_request_duration_seconds",
			Help:    "HTTP request latency for library sites.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onleihe_retries_total",
			Help: "Total number of retry attempts after a closed connection.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onleihe_errors_total",
			Help: "Total number of request errors by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onleihe_page_cache_hits_total",
			Help: "GET requests answered from the page cache.",
		},
	)
	resolutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onleihe_endpoint_resolutions_total",
			Help: "Search endpoint resolutions by the strategy that found them.",
		},
		[]string{"strategy"},
	)
	searches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onleihe_searches_total",
			Help: "Library searches by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, cacheHits, resolutions, searches)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		CacheHitsTotal:  cacheHits,
		ResolutionTotal: resolutions,
		SearchesTotal:   searches,
	}
}

// IncRequest increments the requests counter for an HTTP method.
func (m *Metrics) IncRequest(method string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCacheHit increments the page cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// IncResolution counts an endpoint resolution by strategy name.
func (m *Metrics) IncResolution(strategy string) {
	if m == nil {
		return
	}
	m.ResolutionTotal.WithLabelValues(strategy).Inc()
}

// IncSearch counts a finished search by outcome.
func (m *Metrics) IncSearch(outcome string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
}
