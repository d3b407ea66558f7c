package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the rate limiter.
type Metrics struct {
	checks        *prometheus.CounterVec
	denials       *prometheus.CounterVec
	bucketTokens  *prometheus.GaugeVec
	checkDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registerer. Create at most one per process.
func NewMetrics() *Metrics {
	return &Metrics{
		checks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_checks_total",
				Help: "Total number of rate limit checks performed",
			},
			[]string{"tool", "result"},
		),

		denials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_denials_total",
				Help: "Total number of denied rate limit checks",
			},
			[]string{"tool"},
		),

		bucketTokens: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tollgate_bucket_tokens",
				Help: "Current token count per limiter key",
			},
			[]string{"key"},
		),

		checkDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tollgate_check_duration_seconds",
				Help:    "Duration of rate limit checks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
		),
	}
}

// RecordCheck records a rate limit check and its outcome.
func (m *Metrics) RecordCheck(tool string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
		m.denials.WithLabelValues(tool).Inc()
	}
	m.checks.WithLabelValues(tool, result).Inc()
}

// UpdateBucketTokens updates the current token gauge for a key.
func (m *Metrics) UpdateBucketTokens(key string, tokens float64) {
	m.bucketTokens.WithLabelValues(key).Set(tokens)
}

// RecordCheckDuration records how long a check took.
func (m *Metrics) RecordCheckDuration(seconds float64) {
	m.checkDuration.Observe(seconds)
}
