package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Router metrics exported on /metrics by every daemon.
var (
	HopsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queuerouter_hops_published_total",
		Help: "Number of stage hops published by the router core, by class and outcome.",
	}, []string{"class", "outcome"})

	RetriesScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queuerouter_retries_scheduled_total",
		Help: "Number of retry hops scheduled via publishAbort, by class.",
	}, []string{"class"})

	AbortsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queuerouter_aborts_scheduled_total",
		Help: "Number of abort hops scheduled via publishAbort, by class.",
	}, []string{"class"})

	BrokerPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queuerouter_broker_publish_seconds",
		Help:    "Latency of broker adapter Publish calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"exchange"})

	DBMutationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queuerouter_db_mutations_published_total",
		Help: "Number of DB-update publisher mutations published, by mode.",
	}, []string{"mode"})

	BatchTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queuerouter_batch_transitions_total",
		Help: "Number of batch state transitions observed by the batch store, by new state.",
	}, []string{"state"})
)
