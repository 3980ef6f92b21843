package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Context feed metrics
	ChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cepbridge_feed_changes_total",
			Help: "Total number of attribute changes received",
		},
		[]string{"source", "status"},
	)

	ChangesUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cepbridge_feed_changes_unmatched_total",
			Help: "Attribute changes dropped because no monitored attribute matched",
		},
	)

	// Statement engine metrics
	StatementFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cepbridge_statement_firings_total",
			Help: "Total number of output events produced per statement",
		},
		[]string{"statement"},
	)

	OutputEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cepbridge_output_events_dropped_total",
			Help: "Output events that could not be handed to the dispatcher",
		},
		[]string{"reason"},
	)

	// Dispatcher metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cepbridge_dispatch_queue_depth",
			Help: "Current depth of the dispatch queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cepbridge_dispatch_queue_capacity",
			Help: "Maximum capacity of the dispatch queue",
		},
	)

	InFlightDeliveries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cepbridge_deliveries_in_flight",
			Help: "Number of (event, sink) deliveries currently in progress",
		},
	)

	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cepbridge_delivery_attempts_total",
			Help: "Total number of outbound HTTP attempts",
		},
		[]string{"outcome"},
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cepbridge_delivery_duration_seconds",
			Help:    "Duration of single outbound HTTP attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeliveriesSucceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cepbridge_deliveries_succeeded_total",
			Help: "Total number of (event, sink) deliveries that succeeded",
		},
	)

	DeliveriesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cepbridge_deliveries_failed_total",
			Help: "Total number of DeliveryFailed notices by reason",
		},
		[]string{"reason"},
	)

	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cepbridge_sink_rate_limit_waits_total",
			Help: "Attempts delayed by the per-sink rate limiter",
		},
	)

	// Registry metrics
	RegisteredSinks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cepbridge_registered_sinks",
			Help: "Number of registered event sinks",
		},
	)

	MonitoredAttributes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cepbridge_monitored_attributes",
			Help: "Number of monitored context attributes",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cepbridge_store_errors_total",
			Help: "Total number of registry store errors",
		},
		[]string{"operation"},
	)
)
