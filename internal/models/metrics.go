package models

import "time"

// MetricsSnapshot is a lightweight summary of the instrumentation counters for the admin dashboard.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheInvalidations       uint64    `json:"cache_invalidations"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Reconciles               uint64    `json:"reconciles"`
	ReconcileFailures        uint64    `json:"reconcile_failures"`
	SeatRejections           uint64    `json:"seat_rejections"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
