package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox delivery outcomes.
const (
	OutboxOutcomePublished    = "published"
	OutboxOutcomeRetry        = "retry"
	OutboxOutcomeDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks outbox delivery. A nil value records nothing.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	batch      prometheus.Histogram
}

// NewOutboxMetrics registers the outbox publisher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_deliveries_total",
		Help:      "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "outbox_batch_duration_seconds",
		Help:      "Time spent claiming and publishing one outbox batch.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(deliveries, batch)
	return &OutboxMetrics{deliveries: deliveries, batch: batch}
}

func (o *OutboxMetrics) IncDelivery(eventType, outcome string) {
	if o == nil || o.deliveries == nil {
		return
	}
	o.deliveries.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (o *OutboxMetrics) ObserveBatch(d time.Duration) {
	if o == nil || o.batch == nil {
		return
	}
	o.batch.Observe(d.Seconds())
}
