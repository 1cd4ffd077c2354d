// Package metrics exposes Prometheus instrumentation for every stage of
// the Darwin Core Archive download pipeline: outbound requests, rate
// limiter waits, circuit breaker state, photo downloads, and archive
// row counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts outbound iNaturalist API calls by endpoint and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dwca_requests_total",
			Help: "Total outbound iNaturalist API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: success, response_error, transport_error, error (e.g. breaker open)
	)

	// RateLimiterWaitSeconds observes how long callers blocked for a rate limiter slot.
	RateLimiterWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dwca_rate_limiter_wait_seconds",
			Help:    "Time spent waiting for a rate limiter slot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CircuitBreakerState mirrors the gobreaker state per endpoint (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dwca_circuit_breaker_state",
			Help: "Circuit breaker state per endpoint (0=closed, 1=half-open, 2=open)",
		},
		[]string{"endpoint"},
	)

	// PhotosDownloadedTotal counts photos by final outcome, once per photo
	// after any retries.
	PhotosDownloadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dwca_photos_downloaded_total",
			Help: "Total photos processed by final download outcome",
		},
		[]string{"outcome"}, // outcome: success, failed
	)

	// PagesProcessedTotal counts observation pages fetched and mapped.
	PagesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dwca_pages_processed_total",
			Help: "Total observation pages fetched and mapped",
		},
	)

	// ArchiveRowsTotal counts rows written to each DwC-A table.
	ArchiveRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dwca_archive_rows_total",
			Help: "Total rows written per archive table",
		},
		[]string{"row_type"}, // occurrence, multimedia, audiovisual, identification
	)

	// TaxaResolutionDuration observes the time spent resolving a chunk of taxon IDs.
	TaxaResolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dwca_taxa_resolution_duration_seconds",
			Help:    "Duration of a single taxa-chunk resolution call",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// ObserveRateLimiterWait records the duration a caller waited for a slot.
func ObserveRateLimiterWait(d time.Duration) {
	RateLimiterWaitSeconds.Observe(d.Seconds())
}

// SetCircuitBreakerState records the current breaker state for an endpoint.
// state must be one of 0 (closed), 1 (half-open), 2 (open), matching
// gobreaker's own State ordering.
func SetCircuitBreakerState(endpoint string, state int) {
	CircuitBreakerState.WithLabelValues(endpoint).Set(float64(state))
}
