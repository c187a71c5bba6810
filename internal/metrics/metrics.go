package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscope_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadscope_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	QuotaUnlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscope_quota_unlocks_total",
			Help: "Total number of quota unlock decisions by outcome.",
		},
		[]string{"outcome"},
	)

	QuotaWindowResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leadscope_quota_window_resets_total",
			Help: "Total number of quota windows rolled over.",
		},
	)

	AuditEventsPersistedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leadscope_audit_events_persisted_total",
			Help: "Total number of quota events persisted to the audit log.",
		},
	)
)

// Unlock decision outcomes.
const (
	OutcomeAllowed   = "allowed"
	OutcomeDenied    = "denied"
	OutcomeTruncated = "truncated"
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotaUnlocksTotal,
		QuotaWindowResetsTotal,
		AuditEventsPersistedTotal,
	)
}
