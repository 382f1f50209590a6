package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/execution-hub/agent-orchestrator/internal/application/orchestrator"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
)

const namespace = "orchestrator"

// Metrics exports lifecycle events and dispatch outcomes to Prometheus.
// It is both an event.Publisher and an orchestrator.DispatchObserver.
type Metrics struct {
	events     *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	breaker    *prometheus.GaugeVec
	instances  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Lifecycle events published, by type.",
		}, []string{"type"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Routed tasks, by worker and outcome.",
		}, []string{"worker", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Worker invocation latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"worker"}),
		breaker: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "1 while the worker's circuit breaker is open.",
		}, []string{"worker"}),
		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances",
			Help:      "Instances provisioned per worker by scaling events.",
		}, []string{"worker"}),
	}
	reg.MustRegister(m.events, m.dispatches, m.latency, m.breaker, m.instances)
	return m
}

func (m *Metrics) Publish(e *event.Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case event.TypeBreakerOpened:
		m.breaker.WithLabelValues(e.Agent).Set(1)
	case event.TypeBreakerClosed:
		m.breaker.WithLabelValues(e.Agent).Set(0)
	case event.TypeScaledUp, event.TypeScaledDown, event.TypeAutoScalingConfigured:
		if n, ok := instanceCount(e.Data); ok {
			m.instances.WithLabelValues(e.Agent).Set(n)
		}
	}
}

func (m *Metrics) ObserveDispatch(worker string, outcome orchestrator.Outcome, elapsed time.Duration) {
	m.dispatches.WithLabelValues(worker, string(outcome)).Inc()
	if outcome == orchestrator.OutcomeSuccess || outcome == orchestrator.OutcomeError {
		m.latency.WithLabelValues(worker).Observe(elapsed.Seconds())
	}
}

func instanceCount(data map[string]any) (float64, bool) {
	switch v := data["instances"].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
