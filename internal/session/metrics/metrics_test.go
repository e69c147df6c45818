package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTransitionMovesStateGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementTenantCreated("created")
	m.ObserveTransition("connection_requested", "created", "initializing")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.TenantsByState.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TenantsByState.WithLabelValues("initializing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("connection_requested", "initializing")))

	m.IncrementTenantRemoved("initializing")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TenantsByState.WithLabelValues("initializing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TenantsRemoved))
}

func TestPollFailuresCounted(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObservePoll(time.Now(), false)
	m.ObservePoll(time.Now(), true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollFailures))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementTenantCreated("created")
		m.ObserveTransition("ready", "authenticated", "connected")
		m.IncrementIgnoredTrigger("ready", "created")
		m.ObserveSend(time.Now(), "ok")
		m.IncrementBusDropped()
		m.ObservePoll(time.Now(), true)
		m.IncrementRelease("ok")
	})
}
