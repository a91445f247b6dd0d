package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Chain execution
	// ============================================
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_operations_total",
			Help: "Total number of state-changing chain operations",
		},
		[]string{"chain", "operation", "result"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_operation_duration_seconds",
			Help:    "Chain operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "operation"},
	)

	StateWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_state_writes_total",
			Help: "Total number of keys written to the state db",
		},
		[]string{"chain"},
	)

	// ============================================
	// Protocol
	// ============================================
	SignaturesAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_signatures_accepted_total",
			Help: "Total number of validator signatures accepted",
		},
		[]string{"chain", "kind"},
	)

	QuorumsReached = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_quorums_reached_total",
			Help: "Total number of messages that reached the signature threshold",
		},
		[]string{"chain"},
	)

	TransfersInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transfers_initiated_total",
			Help: "Total number of outbound transfers",
		},
		[]string{"chain"},
	)

	TransfersExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transfers_executed_total",
			Help: "Total number of inbound transfers paid out",
		},
		[]string{"chain"},
	)

	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_rejections_total",
			Help: "Total number of rejected bridge operations by error kind",
		},
		[]string{"chain", "kind"},
	)

	ValidatorCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_validators",
			Help: "Number of validators in the set",
		},
		[]string{"chain"},
	)

	RequiredSignatures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_required_signatures",
			Help: "Signatures required for quorum",
		},
		[]string{"chain"},
	)

	AssetBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_asset_balance",
			Help: "Asset amounts in whole units: held by the ledger, or total token supply",
		},
		[]string{"chain", "asset", "kind"},
	)

	// ============================================
	// Event delivery
	// ============================================
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_published_total",
			Help: "Total number of events published after commit",
		},
		[]string{"chain", "event"},
	)

	EventSinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_event_sink_errors_total",
			Help: "Total number of event sink delivery failures",
		},
		[]string{"chain"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_websocket_connections",
		Help: "Number of open websocket event streams",
	})

	// ============================================
	// Audit database
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_db_connections_active",
		Help: "Number of in-use database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_db_connections_idle",
		Help: "Number of idle database connections",
	})

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type"},
	)
)
