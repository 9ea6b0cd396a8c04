package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHitRatio     prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheInvalidated  *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	reconcileTotal    *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	invalidationCount    uint64
	requestCount         uint64
	requestDurationTotal uint64
	reconcileCount       uint64
	reconcileFailCount   uint64
	seatRejectionCount   uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	cacheInvalidated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_invalidations_total",
		Help: "Cache invalidation calls by trigger",
	}, []string{"trigger"})

	reconcileDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "section_reconcile_duration_seconds",
		Help:    "Duration of section reconciliation passes",
		Buckets: prometheus.DefBuckets,
	}, []string{"section"})

	reconcileTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "section_reconcile_total",
		Help: "Section reconciliation passes by outcome",
	}, []string{"section", "result"})

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Enrollment status transitions by target status and outcome",
	}, []string{"status", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		cacheInvalidated, reconcileDuration, reconcileTotal, transitionsTotal, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		cacheInvalidated:  cacheInvalidated,
		reconcileDuration: reconcileDuration,
		reconcileTotal:    reconcileTotal,
		transitionsTotal:  transitionsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordCacheInvalidation counts an invalidation call. trigger is "pattern" or a section name.
func (m *MetricsService) RecordCacheInvalidation(trigger string) {
	if m == nil {
		return
	}
	m.cacheInvalidated.WithLabelValues(trigger).Inc()
	atomic.AddUint64(&m.invalidationCount, 1)
}

// ObserveReconcile records one reconciliation pass for a section.
func (m *MetricsService) ObserveReconcile(section string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		atomic.AddUint64(&m.reconcileFailCount, 1)
	}
	m.reconcileDuration.WithLabelValues(section).Observe(duration.Seconds())
	m.reconcileTotal.WithLabelValues(section, result).Inc()
	atomic.AddUint64(&m.reconcileCount, 1)
}

// RecordTransition counts an enrollment status change attempt. result is "ok",
// "noop", or the error code that refused it.
func (m *MetricsService) RecordTransition(status models.EnrollmentStatus, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(status), result).Inc()
	if result == "BATCH_FULL" {
		atomic.AddUint64(&m.seatRejectionCount, 1)
	}
}

// Snapshot returns aggregated metrics suitable for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheInvalidations:       atomic.LoadUint64(&m.invalidationCount),
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Reconciles:               atomic.LoadUint64(&m.reconcileCount),
		ReconcileFailures:        atomic.LoadUint64(&m.reconcileFailCount),
		SeatRejections:           atomic.LoadUint64(&m.seatRejectionCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
