package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Aggregator metrics
	AggregatorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_aggregator_requests_total",
			Help: "Total number of requests sent to the route aggregator",
		},
		[]string{"endpoint", "outcome"},
	)

	AggregatorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_aggregator_duration_seconds",
			Help:    "Route aggregator request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"endpoint"},
	)

	AggregatorRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_aggregator_retries_total",
		Help: "Total number of retried quote fetches",
	})

	// Quote cache metrics
	QuoteCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_quote_cache_hits_total",
		Help: "Total number of quote cache hits",
	})

	QuoteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_quote_cache_misses_total",
		Help: "Total number of quote cache misses",
	})

	QuoteCacheCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_quote_cache_coalesced_total",
		Help: "Total number of quote lookups that waited on an in-flight fetch",
	})

	QuoteCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_quote_cache_size",
		Help: "Current number of entries in the quote cache",
	})

	PriceImpact = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_price_impact_bps",
		Help:    "Price impact of fetched quotes in basis points",
		Buckets: []float64{0, 10, 50, 100, 300, 500, 1000, 5000, 10000},
	})

	// Fee metrics
	FeeDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fee_decisions_total",
			Help: "Total number of fee decisions",
		},
		[]string{"side", "applies"},
	)

	// Builder metrics
	BuildRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_build_requests_total",
			Help: "Total number of transaction builds",
		},
		[]string{"status"},
	)

	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_build_duration_seconds",
		Help:    "Transaction build duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	TransactionSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_transaction_size_bytes",
		Help:    "Serialized size of built transactions",
		Buckets: []float64{256, 512, 768, 1024, 1152, 1232},
	})

	LookupTableCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_lookup_table_cache_size",
		Help: "Current number of resolved address lookup tables",
	})

	// Registry metrics
	RegistrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_registry_size",
		Help: "Current number of pending unsigned transactions",
	})

	RegistryConsumes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_registry_consumes_total",
			Help: "Total number of registry consume attempts",
		},
		[]string{"outcome"},
	)

	RegistryExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_registry_expired_total",
		Help: "Total number of records removed by the expiry sweep",
	})

	// Submission metrics
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_submissions_total",
			Help: "Total number of signed swap submissions",
		},
		[]string{"status", "code"},
	)

	ConfirmationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_confirmation_duration_seconds",
		Help:    "Time from broadcast to confirmation in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	SignatureMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_signature_mismatches_total",
		Help: "Total number of submissions rejected for an invalid requester signature",
	})

	// Simulation metrics
	SimulationRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_simulation_requests_total",
		Help: "Total number of transaction simulations",
	})

	SimulationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_simulation_failures_total",
			Help: "Total number of failed transaction simulations",
		},
		[]string{"reason"},
	)

	ComputeUnits = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_compute_units",
		Help:    "Compute units consumed by simulated transactions",
		Buckets: []float64{1000, 5000, 10000, 50000, 100000, 200000, 400000},
	})

	PriorityFee = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_priority_fee_micro_lamports",
		Help: "Last computed compute unit price",
	})

	// Swap lifecycle
	SwapTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_swap_transitions_total",
			Help: "Total number of swap state transitions",
		},
		[]string{"state"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_http_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	})
)
