package metrics

import "github.com/prometheus/client_golang/prometheus"

type resilienceMetrics struct {
	service      string
	breakerState *prometheus.GaugeVec
	retriesTotal *prometheus.CounterVec
}

func newResilienceMetrics(service string) *resilienceMetrics {
	return &resilienceMetrics{
		service: service,
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
			},
			[]string{"service", "operation"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "retries_total",
				Help:      "Retried outbound attempts per operation.",
			},
			[]string{"service", "operation"},
		),
	}
}

func (m *resilienceMetrics) register(registry *prometheus.Registry) {
	registry.MustRegister(m.breakerState, m.retriesTotal)
}

// ObserveBreaker matches resilience.StateObserver.
func (m *resilienceMetrics) ObserveBreaker(operation, _, to string) {
	m.breakerState.WithLabelValues(m.service, operation).Set(breakerValue(to))
}

// ObserveRetry matches resilience.RetryObserver.
func (m *resilienceMetrics) ObserveRetry(operation string, _ int) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func breakerValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half-open":
		return 1
	default:
		return 0
	}
}
