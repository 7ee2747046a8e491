package gateway

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	authAttempts      *prometheus.CounterVec
	frameErrors       *prometheus.CounterVec
	frameLatency      *prometheus.HistogramVec
	deliveries        prometheus.Counter
	rateLimited       prometheus.Counter
}

func newGatewayMetrics(reg prometheus.Registerer) *gatewayMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &gatewayMetrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whatsup_gateway_connections_active",
			Help: "Current number of open websocket connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatsup_gateway_connections_total",
			Help: "Total number of websocket connections accepted since start.",
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsup_gateway_auth_total",
			Help: "Authentication attempts grouped by result.",
		}, []string{"result"}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsup_gateway_errors_total",
			Help: "Errors reported to connections grouped by kind.",
		}, []string{"kind"}),
		frameLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whatsup_gateway_event_latency_seconds",
			Help:    "Latency for handling inbound events.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"event"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatsup_gateway_deliveries_total",
			Help: "Frames queued to connections by room broadcasts.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatsup_gateway_rate_limited_total",
			Help: "Inbound events rejected by the rate limiter.",
		}),
	}

	m.activeConnections = register(reg, m.activeConnections)
	m.connectionsTotal = register(reg, m.connectionsTotal)
	m.authAttempts = register(reg, m.authAttempts)
	m.frameErrors = register(reg, m.frameErrors)
	m.frameLatency = register(reg, m.frameLatency)
	m.deliveries = register(reg, m.deliveries)
	m.rateLimited = register(reg, m.rateLimited)
	return m
}

// register adds c to reg, or returns the collector registered under the same
// name by an earlier gateway in this process.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *gatewayMetrics) incConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
	m.connectionsTotal.Inc()
}

func (m *gatewayMetrics) decConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *gatewayMetrics) recordAuth(result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(result).Inc()
}

func (m *gatewayMetrics) recordError(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.frameErrors.WithLabelValues(kind).Inc()
}

func (m *gatewayMetrics) observeLatency(event string, dur time.Duration) {
	if m == nil || event == "" {
		return
	}
	m.frameLatency.WithLabelValues(event).Observe(dur.Seconds())
}

func (m *gatewayMetrics) recordDeliveries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deliveries.Add(float64(n))
}

func (m *gatewayMetrics) recordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
