package shutdown

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chatpulse/internal/messaging"
	"chatpulse/internal/messaging/messagingtest"
	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/models"
	"chatpulse/internal/session/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubbornReleaser blocks on one tenant without honouring the context.
type stubbornReleaser struct {
	*messagingtest.PullBackend
	hang    models.TenantID
	fail    models.TenantID
	unblock chan struct{}
}

func (r *stubbornReleaser) Release(ctx context.Context, conn messaging.Conn) error {
	switch conn.TenantID() {
	case r.hang:
		<-r.unblock
		return nil
	case r.fail:
		return errors.New("socket already closed")
	}
	return r.PullBackend.Release(ctx, conn)
}

type waiterFunc func(ctx context.Context) error

func (f waiterFunc) WaitBackground(ctx context.Context) error { return f(ctx) }

func setup(t *testing.T, ids ...models.TenantID) (*registry.Registry, *messagingtest.PullBackend) {
	t.Helper()
	b := bus.New()
	t.Cleanup(b.Close)
	reg := registry.New(b)
	backend := messagingtest.NewPull()
	for _, id := range ids {
		h, err := reg.Create(id, models.DisplayInfo{})
		require.NoError(t, err)
		conn, err := backend.Open(context.Background(), id)
		require.NoError(t, err)
		h.SwapConn(conn, nil)
	}
	return reg, backend
}

func TestDrainBoundsSlowTenant(t *testing.T) {
	const timeout = 100 * time.Millisecond
	reg, backend := setup(t, "a", "slow", "c")
	releaser := &stubbornReleaser{PullBackend: backend, hang: "slow", unblock: make(chan struct{})}
	defer close(releaser.unblock)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	c, err := New(reg, releaser, WithReleaseTimeout(timeout), WithConcurrency(1), WithLogger(logger))
	require.NoError(t, err)

	start := time.Now()
	report := c.Drain(context.Background())
	assert.Less(t, time.Since(start), 3*timeout)

	assert.Equal(t, OutcomeReleased, report.Outcomes["a"])
	assert.Equal(t, OutcomeReleased, report.Outcomes["c"])
	assert.Equal(t, OutcomeTimedOut, report.Outcomes["slow"])
	assert.ErrorIs(t, report.Err(), context.DeadlineExceeded)
	assert.ElementsMatch(t, []models.TenantID{"a", "c"}, backend.Released())
	assert.Zero(t, reg.Len(), "drained tenants are removed")

	out := logs.String()
	assert.Equal(t, 2, strings.Count(out, `"msg":"tenant released"`))
	assert.Equal(t, 1, strings.Count(out, `"msg":"tenant release failed"`))
	assert.Contains(t, out, `"tenant_id":"slow"`)
}

func TestDrainCollectsFailuresAndContinues(t *testing.T) {
	reg, backend := setup(t, "a", "broken", "c")
	releaser := &stubbornReleaser{PullBackend: backend, fail: "broken", unblock: make(chan struct{})}

	c, err := New(reg, releaser)
	require.NoError(t, err)
	report := c.Drain(context.Background())

	assert.Equal(t, 2, report.Count(OutcomeReleased))
	assert.Equal(t, OutcomeFailed, report.Outcomes["broken"])
	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "release broken")
}

func TestDrainHandlesTenantsWithoutConnection(t *testing.T) {
	reg, backend := setup(t, "a")
	h, err := reg.Create("idle", models.DisplayInfo{})
	require.NoError(t, err)

	c, err := New(reg, backend)
	require.NoError(t, err)
	report := c.Drain(context.Background())

	assert.Equal(t, OutcomeNoConn, report.Outcomes["idle"])
	assert.Equal(t, OutcomeReleased, report.Outcomes["a"])
	assert.NoError(t, report.Err())
	assert.Error(t, h.Context().Err(), "removing a tenant cancels its context")
}

func TestDrainStopsSubscriptions(t *testing.T) {
	reg, backend := setup(t)
	h, err := reg.Create("t1", models.DisplayInfo{})
	require.NoError(t, err)
	conn, err := backend.Open(context.Background(), "t1")
	require.NoError(t, err)
	stopped := false
	h.SwapConn(conn, func() { stopped = true })

	c, err := New(reg, backend)
	require.NoError(t, err)
	c.Drain(context.Background())
	assert.True(t, stopped)
}

func TestDrainWaitsForBackgroundWork(t *testing.T) {
	reg, backend := setup(t, "a")
	waited := false
	c, err := New(reg, backend, WithBackground(waiterFunc(func(context.Context) error {
		waited = true
		return nil
	})))
	require.NoError(t, err)

	c.Drain(context.Background())
	assert.True(t, waited)
}

func TestDrainEmptyRegistry(t *testing.T) {
	reg, backend := setup(t)
	c, err := New(reg, backend)
	require.NoError(t, err)

	report := c.Drain(context.Background())
	assert.Empty(t, report.Outcomes)
	assert.NoError(t, report.Err())
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}
