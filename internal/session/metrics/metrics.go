package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the session core. All methods
// are safe to call on a nil *Metrics so components can run without metrics.
type Metrics struct {
	TenantsCreated     prometheus.Counter
	TenantsRemoved     prometheus.Counter
	TenantsByState     *prometheus.GaugeVec
	Transitions        *prometheus.CounterVec
	IgnoredTriggers    *prometheus.CounterVec
	ArtifactRefreshes  prometheus.Counter
	MessagesReceived   prometheus.Counter
	SendDuration       *prometheus.HistogramVec
	BusSubscribers     prometheus.Gauge
	BusDropped         prometheus.Counter
	PollDuration       prometheus.Histogram
	PollFailures       prometheus.Counter
	ReleaseOutcomes    *prometheus.CounterVec
	BackendErrorEvents prometheus.Counter
	SinkDeliveries     *prometheus.CounterVec
}

// New creates the session metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TenantsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "chatpulse_tenants_created_total",
			Help: "Total number of tenant sessions created",
		}),
		TenantsRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "chatpulse_tenants_removed_total",
			Help: "Total number of tenant sessions removed by disconnect",
		}),
		TenantsByState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatpulse_tenants",
			Help: "Current number of tenant sessions, labeled by lifecycle state",
		}, []string{"state"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpulse_session_transitions_total",
			Help: "Accepted lifecycle transitions, labeled by trigger and target state",
		}, []string{"trigger", "to"}),
		IgnoredTriggers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpulse_session_ignored_triggers_total",
			Help: "Triggers ignored because the source state did not allow them",
		}, []string{"trigger", "state"}),
		ArtifactRefreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "chatpulse_auth_artifact_refreshes_total",
			Help: "Auth artifacts replaced while already pending",
		}),
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "chatpulse_messages_received_total",
			Help: "Inbound messages relayed from messaging backends",
		}),
		SendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatpulse_send_duration_seconds",
			Help:    "Latency of outbound sends, labeled by outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		BusSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "chatpulse_bus_subscribers",
			Help: "Current number of event bus subscriptions",
		}),
		BusDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "chatpulse_bus_dropped_events_total",
			Help: "Events dropped from full subscriber queues",
		}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatpulse_reconcile_poll_duration_seconds",
			Help:    "Duration of individual status polls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		PollFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "chatpulse_reconcile_poll_failures_total",
			Help: "Status polls that failed or timed out",
		}),
		ReleaseOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpulse_connection_releases_total",
			Help: "Connection release attempts, labeled by outcome",
		}, []string{"outcome"}),
		BackendErrorEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "chatpulse_backend_error_events_total",
			Help: "Error events raised from backend signals or failed background work",
		}),
		SinkDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatpulse_sink_deliveries_total",
			Help: "Events relayed to external sinks, labeled by sink and outcome",
		}, []string{"sink", "outcome"}),
	}
}

func (m *Metrics) IncrementTenantCreated(state string) {
	if m == nil {
		return
	}
	m.TenantsCreated.Inc()
	m.TenantsByState.WithLabelValues(state).Inc()
}

func (m *Metrics) IncrementTenantRemoved(state string) {
	if m == nil {
		return
	}
	m.TenantsRemoved.Inc()
	m.TenantsByState.WithLabelValues(state).Dec()
}

// ObserveTransition records an accepted transition and moves the tenant
// between state gauges.
func (m *Metrics) ObserveTransition(trigger, from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(trigger, to).Inc()
	m.TenantsByState.WithLabelValues(from).Dec()
	m.TenantsByState.WithLabelValues(to).Inc()
}

func (m *Metrics) IncrementIgnoredTrigger(trigger, state string) {
	if m == nil {
		return
	}
	m.IgnoredTriggers.WithLabelValues(trigger, state).Inc()
}

func (m *Metrics) IncrementArtifactRefresh() {
	if m == nil {
		return
	}
	m.ArtifactRefreshes.Inc()
}

func (m *Metrics) IncrementMessagesReceived() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

// ObserveSend records the latency of a send attempt started at start.
func (m *Metrics) ObserveSend(start time.Time, outcome string) {
	if m == nil {
		return
	}
	m.SendDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetBusSubscribers(n int) {
	if m == nil {
		return
	}
	m.BusSubscribers.Set(float64(n))
}

func (m *Metrics) IncrementBusDropped() {
	if m == nil {
		return
	}
	m.BusDropped.Inc()
}

// ObservePoll records a poll started at start; failed polls also bump the
// failure counter.
func (m *Metrics) ObservePoll(start time.Time, failed bool) {
	if m == nil {
		return
	}
	m.PollDuration.Observe(time.Since(start).Seconds())
	if failed {
		m.PollFailures.Inc()
	}
}

func (m *Metrics) IncrementRelease(outcome string) {
	if m == nil {
		return
	}
	m.ReleaseOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementBackendErrorEvent() {
	if m == nil {
		return
	}
	m.BackendErrorEvents.Inc()
}

func (m *Metrics) IncrementSinkDelivery(sink, outcome string) {
	if m == nil {
		return
	}
	m.SinkDeliveries.WithLabelValues(sink, outcome).Inc()
}
