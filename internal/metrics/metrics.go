package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigov_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aigov_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigov_quota_decisions_total",
			Help: "Admission decisions rendered, labeled by outcome reason.",
		},
		[]string{"result"},
	)

	UsageRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigov_usage_records_total",
			Help: "Usage ledger appends, labeled by attempt outcome.",
		},
		[]string{"outcome"},
	)

	LegacySyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigov_legacy_sync_total",
			Help: "Legacy counter synchronization attempts.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotaDecisionsTotal,
		UsageRecordsTotal,
		LegacySyncTotal,
	)
}
