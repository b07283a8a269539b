// Package monitoring exposes Prometheus metrics for inventory runs and the
// meteo provider.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Inventory run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_runs_total",
			Help: "Total number of inventory runs",
		},
		[]string{"mode", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emissions_run_duration_seconds",
			Help:    "Inventory run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"mode"},
	)

	DatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_dates_processed_total",
			Help: "Total number of dates processed",
		},
		[]string{"status"},
	)

	DateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "emissions_date_duration_seconds",
			Help:    "Time to compute all links of one date",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
	)

	LinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_link_failures_total",
			Help: "Total number of failed link computations by cause",
		},
		[]string{"cause"},
	)

	// External service metrics
	ExternalServiceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_external_service_requests_total",
			Help: "Total number of external service requests",
		},
		[]string{"service", "operation", "status"},
	)

	ExternalServiceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emissions_external_service_request_duration_seconds",
			Help:    "External service request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"service", "operation"},
	)

	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emissions_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"service"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_rate_limit_exceeded_total",
			Help: "Total number of rejected API requests by limiter",
		},
		[]string{"limiter"},
	)
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRun records a finished inventory run.
func RecordRun(mode string, duration time.Duration, success bool) {
	RunsTotal.WithLabelValues(mode, status(success)).Inc()
	RunDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordDate records one processed date.
func RecordDate(duration time.Duration, success bool) {
	DatesProcessed.WithLabelValues(status(success)).Inc()
	DateDuration.Observe(duration.Seconds())
}

// RecordLinkFailure counts a failed link computation.
func RecordLinkFailure(cause string) {
	LinkFailures.WithLabelValues(cause).Inc()
}

func RecordExternalServiceRequest(service, operation string, duration time.Duration, success bool) {
	ExternalServiceRequestsTotal.WithLabelValues(service, operation, status(success)).Inc()
	ExternalServiceRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func RecordRateLimitWait(service string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(service).Observe(duration.Seconds())
}

func RecordCacheHit(cacheType string) {
	CacheHits.WithLabelValues(cacheType).Inc()
}

func RecordCacheMiss(cacheType string) {
	CacheMisses.WithLabelValues(cacheType).Inc()
}

func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

func RecordRateLimitExceeded(limiter string) {
	RateLimitExceeded.WithLabelValues(limiter).Inc()
}
