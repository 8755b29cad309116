package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Solver metrics
var (
	IntentsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_intents_discovered_total",
		Help: "The total number of intents picked up from creation events",
	}, []string{"chain_id"})

	BidsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_bids_placed_total",
		Help: "The total number of bids submitted",
	}, []string{"chain_id", "status"})

	IntentsAbandoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_intents_abandoned_total",
		Help: "The total number of intents given up, by reason",
	}, []string{"chain_id", "reason"})

	AuctionsWon = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_auctions_won_total",
		Help: "The total number of auctions won",
	}, []string{"chain_id"})

	AuctionsLost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_auctions_lost_total",
		Help: "The total number of auctions lost to another solver",
	}, []string{"chain_id"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_deliveries_total",
		Help: "The total number of destination deliveries by manifest source and status",
	}, []string{"chain_id", "manifest", "status"})

	Completions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_completions_total",
		Help: "Intents whose payout was observed on the origin chain, or timed out",
	}, []string{"chain_id", "status"})

	IntentProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_intent_processing_seconds",
		Help:    "Time from discovery to observed payout",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s with 10 buckets doubling in size
	}, []string{"chain_id"})

	ActiveIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_active_intents",
		Help: "The number of intents currently tracked by the engine",
	})

	LastProcessedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solver_last_processed_block",
		Help: "Last block scanned for intent events",
	}, []string{"chain_id"})

	PollLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solver_poll_lag_blocks",
		Help: "Blocks between chain head and the last processed block",
	}, []string{"chain_id"})

	GasUsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_gas_used",
		Help:    "Gas used by ledger transactions",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10), // Start at 21000 with 10 buckets doubling in size
	}, []string{"chain_id", "method"})

	GasPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solver_gas_price_gwei",
		Help: "Current gas price in gwei",
	}, []string{"chain_id"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_errors_total",
		Help: "Total number of errors by type",
	}, []string{"chain_id", "error_type"})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_circuit_breaker_trips_total",
		Help: "Number of times a chain circuit breaker opened",
	}, []string{"chain_id"})
)

// Relayer metrics
var (
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_settlements_total",
		Help: "Settle attempts by endpoint and result",
	}, []string{"chain_id", "endpoint", "result"})

	ProofVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_proof_verifications_total",
		Help: "Proof jobs by final status",
	}, []string{"chain_id", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relayer_request_duration_seconds",
		Help:    "HTTP request duration by route and status code",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})

	StoredManifests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_manifest_operations_total",
		Help: "Recipient manifest store operations",
	}, []string{"operation", "result"})
)
