package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records webhook dispatch pass and delivery outcomes.
type DispatchMetrics struct {
	passDuration *prometheus.HistogramVec
	deliveries   *prometheus.CounterVec
	completed    prometheus.Counter
	dropped      prometheus.Counter
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	passDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_dispatch_pass_duration_seconds",
		Help:    "Duration of webhook dispatch passes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "integration_events_completed_total",
		Help: "Integration events marked completed.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_dispatch_passes_dropped_total",
		Help: "Dispatch passes dropped because another pass was in flight.",
	})
	reg.MustRegister(passDuration, deliveries, completed, dropped)
	return &DispatchMetrics{
		passDuration: passDuration,
		deliveries:   deliveries,
		completed:    completed,
		dropped:      dropped,
	}
}

// ObservePass records the duration of one dispatch pass.
func (m *DispatchMetrics) ObservePass(trigger string, duration time.Duration) {
	if m == nil || m.passDuration == nil {
		return
	}
	m.passDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// IncDelivery counts a delivery attempt by outcome.
func (m *DispatchMetrics) IncDelivery(outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// IncCompleted counts an event reaching its terminal state.
func (m *DispatchMetrics) IncCompleted() {
	if m == nil || m.completed == nil {
		return
	}
	m.completed.Inc()
}

// IncDropped counts a pass dropped by the single-flight guard.
func (m *DispatchMetrics) IncDropped() {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Inc()
}
