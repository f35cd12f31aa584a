package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Ledger
	LedgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Committed ledger operations",
		},
		[]string{"kind"}, // ALLOCATE|REDEEM|REFUND|ADJUSTMENT|FUND
	)
	LedgerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operation_failures_total",
			Help: "Rejected or failed ledger operations",
		},
		[]string{"kind", "reason"},
	)
	LedgerRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_retries_total",
			Help: "Ledger transactions retried after a transient conflict",
		},
		[]string{"kind"},
	)

	// Leaderboard
	LeaderboardRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_cache_requests_total",
			Help: "Leaderboard reads by cache outcome",
		},
		[]string{"result"}, // hit|miss|stale|error
	)
	LeaderboardRefresh = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leaderboard_refresh_seconds",
			Help:    "Time spent recomputing the leaderboard snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// /metrics endpoint handler
var Handler = promhttp.Handler

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			HTTPLatency,
			LedgerOperations,
			LedgerFailures,
			LedgerRetries,
			LeaderboardRequests,
			LeaderboardRefresh,
			WorkerQueueDepth,
		)
	})
}
