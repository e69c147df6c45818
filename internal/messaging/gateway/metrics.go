package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records gateway traffic. A nil *Metrics is a no-op.
type Metrics struct {
	Requests    *prometheus.CounterVec
	Webhooks    *prometheus.CounterVec
	BreakerOpen prometheus.Gauge
	ConnTripped prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpulse_gateway_requests_total",
			Help: "Gateway API calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		Webhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpulse_gateway_webhooks_total",
			Help: "Accepted gateway webhook callbacks by event type",
		}, []string{"type"}),
		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatpulse_gateway_circuit_open",
			Help: "1 while the gateway-wide circuit breaker is open",
		}),
		ConnTripped: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatpulse_gateway_connection_circuit_opened_total",
			Help: "Times a single connection's circuit breaker opened",
		}),
	}
}

func (m *Metrics) observeRequest(op, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) observeWebhook(typ string) {
	if m == nil {
		return
	}
	m.Webhooks.WithLabelValues(typ).Inc()
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

func (m *Metrics) incConnBreakerOpened() {
	if m == nil {
		return
	}
	m.ConnTripped.Inc()
}
