package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "propdesk"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	*resilienceMetrics

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	overlaysTotal     *prometheus.CounterVec
	documentsSigned   *prometheus.CounterVec
	deliveriesTotal   *prometheus.CounterVec
	chatMessagesTotal *prometheus.CounterVec
	relayTotal        *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	overlaysTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "overlays_total",
			Help:      "Answer submissions by outcome.",
		},
		[]string{"service", "result"},
	)
	documentsSigned := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "signed_total",
			Help:      "Working documents that reached SIGNED.",
		},
		[]string{"service"},
	)
	deliveriesTotal := newDeliveriesCounter()
	chatMessagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Persisted chat messages by channel.",
		},
		[]string{"service", "channel"},
	)
	relayTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "relay_total",
			Help:      "Broker relay attempts by result.",
		},
		[]string{"service", "result"},
	)
	res := newResilienceMetrics(service)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		overlaysTotal,
		documentsSigned,
		deliveriesTotal,
		chatMessagesTotal,
		relayTotal,
	)
	res.register(registry)

	return &HTTPServerMetrics{
		registry:          registry,
		resilienceMetrics: res,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		overlaysTotal:     overlaysTotal,
		documentsSigned:   documentsSigned,
		deliveriesTotal:   deliveriesTotal,
		chatMessagesTotal: chatMessagesTotal,
		relayTotal:        relayTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware must run inside the chi router so the matched route pattern is
// available once the handler returns.
func (m *HTTPServerMetrics) Middleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			m.requestInFlight.Inc()
			defer m.requestInFlight.Dec()

			next.ServeHTTP(recorder, r)

			path := routePattern(r)
			m.requestTotal.WithLabelValues(
				service,
				r.Method,
				path,
				strconv.Itoa(recorder.statusCode),
			).Inc()
			m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// RecordOverlay counts one answer submission: applied, rejected or failed.
func (m *HTTPServerMetrics) RecordOverlay(service, result string) {
	m.overlaysTotal.WithLabelValues(service, result).Inc()
}

func (m *HTTPServerMetrics) RecordSigned(service string, delivered bool) {
	m.documentsSigned.WithLabelValues(service).Inc()
	m.deliveriesTotal.WithLabelValues(service, "api", deliveryResult(delivered)).Inc()
}

func (m *HTTPServerMetrics) RecordChatMessage(service, channel string, relayed bool) {
	m.chatMessagesTotal.WithLabelValues(service, channel).Inc()
	result := "ok"
	if !relayed {
		result = "error"
	}
	m.relayTotal.WithLabelValues(service, result).Inc()
}

func newDeliveriesCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "deliveries_total",
			Help:      "Signed document deliveries by source and result.",
		},
		[]string{"service", "source", "result"},
	)
}

func deliveryResult(delivered bool) string {
	if delivered {
		return "delivered"
	}
	return "failed"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
