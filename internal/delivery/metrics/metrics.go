package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsDelivered tracks successfully delivered jobs
	JobsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_jobs_delivered_total",
			Help: "Total number of jobs delivered to the target",
		},
	)

	// JobsRetried tracks requeues per error class
	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_jobs_retried_total",
			Help: "Total number of job retries scheduled",
		},
		[]string{"class"},
	)

	// JobsDeadLettered tracks terminal failures per error class
	JobsDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_jobs_dead_lettered_total",
			Help: "Total number of jobs moved to the dead letter store",
		},
		[]string{"class"},
	)

	// BreakerState is the circuit breaker position: 0 closed, 1 half-open, 2 open
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// QueueDepth tracks pending jobs in the queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Number of jobs pending in the queue",
		},
	)

	// DeliveryLatency tracks target delivery latency
	DeliveryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_delivery_latency_seconds",
			Help:    "Target delivery latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
