package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	adminRequestsTotal  *prometheus.CounterVec
	adminLatencySeconds *prometheus.HistogramVec
	adminErrorsTotal    *prometheus.CounterVec
	auditEntriesTotal   *prometheus.CounterVec
	auditDedupDeleted   prometheus.Counter
	printJobsQueued     prometheus.Counter
	printWatchTimeouts  prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used for admin observability.
func RegisterMetrics() {
	registerOnce.Do(func() {
		adminRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_requests_total",
			Help: "Total number of admin API requests served.",
		}, []string{"method", "route", "status"})

		adminLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admin_latency_seconds",
			Help:    "Latency distribution for admin API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		adminErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_errors_total",
			Help: "Total number of error responses returned by admin endpoints.",
		}, []string{"method", "route", "status"})

		auditEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit log entries written.",
		}, []string{"action", "status"})

		auditDedupDeleted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_dedup_deleted_total",
			Help: "Total number of redundant generic audit rows pruned.",
		})

		printJobsQueued = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "print_jobs_queued_total",
			Help: "Total number of membership-card print jobs queued.",
		})

		printWatchTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "print_watch_timeouts_total",
			Help: "Total number of print watch sessions that hit the deadline.",
		})

		prometheus.MustRegister(
			adminRequestsTotal,
			adminLatencySeconds,
			adminErrorsTotal,
			auditEntriesTotal,
			auditDedupDeleted,
			printJobsQueued,
			printWatchTimeouts,
		)
	})
}

// AdminRequests exposes the counter for admin requests.
func AdminRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return adminRequestsTotal
}

// AdminLatency exposes the latency histogram for admin requests.
func AdminLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return adminLatencySeconds
}

// AdminErrors exposes the counter for admin error responses.
func AdminErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return adminErrorsTotal
}

// AuditEntries exposes the counter for written audit entries.
func AuditEntries() *prometheus.CounterVec {
	RegisterMetrics()
	return auditEntriesTotal
}

// AuditDedupDeleted exposes the counter for pruned generic audit rows.
func AuditDedupDeleted() prometheus.Counter {
	RegisterMetrics()
	return auditDedupDeleted
}

// PrintJobsQueued exposes the counter for queued print jobs.
func PrintJobsQueued() prometheus.Counter {
	RegisterMetrics()
	return printJobsQueued
}

// PrintWatchTimeouts exposes the counter for watch sessions that timed out.
func PrintWatchTimeouts() prometheus.Counter {
	RegisterMetrics()
	return printWatchTimeouts
}
