package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueEnqueued counts auto-match requests accepted into a regional queue
var QueueEnqueued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "teammatch_queue_enqueued_total",
		Help: "Total number of match requests enqueued",
	},
	[]string{"event"},
)

// PairsFormed counts requests paired by the coordinator
var PairsFormed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "teammatch_pairs_total",
		Help: "Total number of auto-match pairs formed",
	},
	[]string{"event"},
)

// PairRestores counts requests pushed back to the head of a queue after a partial pop
var PairRestores = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "teammatch_pair_restores_total",
		Help: "Total number of requests restored after an incomplete pairing attempt",
	},
)

// MatchTransitions counts lifecycle transitions
var MatchTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "teammatch_match_transitions_total",
		Help: "Total number of match state transitions",
	},
	[]string{"from", "to"},
)

// Notifications counts push deliveries by transport and result
var Notifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "teammatch_notifications_total",
		Help: "Total number of notification deliveries",
	},
	[]string{"transport", "result"},
)

// SignalLatency records how long a queue-changed signal takes to be handled
var SignalLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "teammatch_signal_dispatch_seconds",
		Help:    "Latency in seconds to handle a queue-changed signal",
		Buckets: prometheus.DefBuckets,
	},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "teammatch_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "teammatch_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teammatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teammatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(QueueEnqueued, PairsFormed, PairRestores, MatchTransitions)
	prometheus.MustRegister(Notifications, SignalLatency)
	prometheus.MustRegister(DBOpenConns, DBInUseConns)
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
}
