package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	*resilienceMetrics

	sweepTotal      *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	sweepInFlight   prometheus.Gauge
	deliveriesTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	sweepTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "redelivery_sweeps_total",
			Help:      "Redelivery sweeps by status.",
		},
		[]string{"service", "status"},
	)
	sweepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "redelivery_sweep_duration_seconds",
			Help:      "Redelivery sweep duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	sweepInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "redelivery_in_flight",
			Help:      "Number of running redelivery sweeps.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	deliveriesTotal := newDeliveriesCounter()
	res := newResilienceMetrics(service)

	registry.MustRegister(sweepTotal, sweepDuration, sweepInFlight, deliveriesTotal)
	res.register(registry)

	return &WorkerMetrics{
		registry:          registry,
		resilienceMetrics: res,
		sweepTotal:        sweepTotal,
		sweepDuration:     sweepDuration,
		sweepInFlight:     sweepInFlight,
		deliveriesTotal:   deliveriesTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartSweep() {
	m.sweepInFlight.Inc()
}

func (m *WorkerMetrics) FinishSweep(service string, delivered int, duration time.Duration, err error) {
	m.sweepInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.sweepTotal.WithLabelValues(service, status).Inc()
	m.sweepDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if delivered > 0 {
		m.deliveriesTotal.WithLabelValues(service, "worker", "delivered").Add(float64(delivered))
	}
}
