package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "settlement",
		Subsystem: "outbox",
		Name:      "events_published_total",
		Help:      "Outbox events delivered to their handler.",
	}, []string{"event_type"})

	eventsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "settlement",
		Subsystem: "outbox",
		Name:      "events_retried_total",
		Help:      "Outbox dispatch attempts that failed and were scheduled for retry.",
	}, []string{"event_type"})

	eventsDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "settlement",
		Subsystem: "outbox",
		Name:      "events_dead_lettered_total",
		Help:      "Outbox events that exhausted retries or had no handler.",
	}, []string{"event_type"})

	eventsReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "settlement",
		Subsystem: "outbox",
		Name:      "events_replayed_total",
		Help:      "Dead-lettered outbox events rearmed by operator replay.",
	})
)
