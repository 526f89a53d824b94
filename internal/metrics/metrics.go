package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database connection
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privatesend_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privatesend_db_connection_pool_size",
		Help: "Database connection pool size",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privatesend_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privatesend_db_connection_idle",
		Help: "Number of idle database connections",
	})

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "privatesend_db_query_duration_seconds",
			Help:    "Send ledger query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type"},
	)

	// ============================================
	// NATS publishing
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privatesend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privatesend_nats_messages_published_total",
			Help: "Total number of stage events published to NATS",
		},
		[]string{"stage"},
	)

	NATSMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privatesend_nats_messages_failed_total",
			Help: "Total number of stage events that failed to publish",
		},
		[]string{"stage"},
	)

	// ============================================
	// Private send pipeline
	// ============================================
	PrivateSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privatesend_requests_total",
			Help: "Total number of private sends by token and outcome",
		},
		[]string{"token", "outcome"},
	)

	PrivateSendRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privatesend_rejected_total",
			Help: "Requests rejected before the deposit was relayed",
		},
		[]string{"reason"},
	)

	StageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privatesend_stage_transitions_total",
			Help: "Stage transitions reported by the orchestrator",
		},
		[]string{"stage"},
	)

	PrivateSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "privatesend_duration_seconds",
			Help:    "End-to-end private send duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"token", "outcome"},
	)

	// ============================================
	// Outbound calls
	// ============================================
	RelayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "privatesend_relay_request_duration_seconds",
			Help:    "Relayer request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "status"},
	)

	ProverRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "privatesend_prover_request_duration_seconds",
			Help:    "Prover request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"operation", "status"},
	)

	SettlementWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "privatesend_settlement_wait_seconds",
			Help:    "Time spent waiting for the deposit to settle",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"mode", "result"},
	)

	SolanaRPCStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privatesend_solana_rpc_status",
		Help: "Solana RPC health (1=ok, 0=unhealthy)",
	})

	// ============================================
	// Push connections
	// ============================================
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privatesend_websocket_connections",
		Help: "Number of open stage push connections",
	})
)
