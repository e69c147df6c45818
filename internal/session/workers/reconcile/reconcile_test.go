package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"chatpulse/internal/messaging"
	"chatpulse/internal/messaging/messagingtest"
	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/models"
	"chatpulse/internal/session/registry"
	"chatpulse/internal/session/service"
	"chatpulse/pkg/platform/circuit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type ReconcileSuite struct {
	suite.Suite
	ctx     context.Context
	bus     *bus.Bus
	reg     *registry.Registry
	backend *messagingtest.PullBackend
	manager *service.Manager
}

func TestReconcileSuite(t *testing.T) {
	suite.Run(t, new(ReconcileSuite))
}

func (s *ReconcileSuite) SetupTest() {
	s.ctx = context.Background()
	s.bus = bus.New(bus.WithBuffer(128))
	s.reg = registry.New(s.bus)
	s.backend = messagingtest.NewPull()
	s.manager = service.New(s.reg, s.backend, service.WithReleaseTimeout(time.Second))
}

func (s *ReconcileSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.manager.WaitBackground(ctx))
	s.bus.Close()
}

func (s *ReconcileSuite) newWorker(opts ...Option) *Worker {
	w, err := New(s.reg, s.backend, s.manager, opts...)
	s.Require().NoError(err)
	return w
}

// pending brings tenantID to authPending through a polled artifact.
func (s *ReconcileSuite) pending(w *Worker, tenantID models.TenantID) {
	s.T().Helper()
	_, err := s.manager.Create(s.ctx, tenantID, models.DisplayInfo{})
	s.Require().NoError(err)
	_, err = s.manager.RequestAuthArtifact(s.ctx, tenantID)
	s.Require().NoError(err)

	s.backend.SetStatus(tenantID, messaging.RemoteStatus{State: messaging.RemoteAwaitingAuth, Artifact: "QR-" + tenantID.String()})
	_, err = w.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(models.StateAuthPending, s.state(tenantID))
}

func (s *ReconcileSuite) state(tenantID models.TenantID) models.State {
	st, err := s.manager.Status(s.ctx, tenantID)
	s.Require().NoError(err)
	return st.State
}

func drain(sub *bus.Subscription) []models.Event {
	var out []models.Event
	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

func (s *ReconcileSuite) TestLoggedOutWhilePendingDisconnects() {
	w := s.newWorker()
	s.pending(w, "t1")
	sub := s.bus.Subscribe("t1")
	defer sub.Close()

	s.backend.SetStatus("t1", messaging.RemoteStatus{State: messaging.RemoteLoggedOut})
	res, err := w.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(Result{Polled: 1, Changed: 1}, res)
	s.Equal(models.StateDisconnected, s.state("t1"))

	events := drain(sub)
	s.Require().Len(events, 1)
	s.Equal(models.EventStateChanged, events[0].Type)
	s.Equal(models.StateAuthPending, events[0].FromState)
	s.Equal(models.StateDisconnected, events[0].ToState)
}

func (s *ReconcileSuite) TestAuthorizedAndConnectedStatusesWalkToConnected() {
	w := s.newWorker()
	s.pending(w, "t1")

	s.backend.SetStatus("t1", messaging.RemoteStatus{State: messaging.RemoteConnected, AccountID: "acct-1"})
	res, err := w.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Changed)

	st, err := s.manager.Status(s.ctx, "t1")
	s.Require().NoError(err)
	s.Equal(models.StateConnected, st.State)
	s.Equal("acct-1", st.DisplayInfo.AccountID)

	res, err = w.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(Result{Polled: 1}, res, "matching states produce no signals")
}

func (s *ReconcileSuite) TestFailedPollDoesNotChangeState() {
	w := s.newWorker()
	s.pending(w, "t1")
	sub := s.bus.Subscribe("t1")
	defer sub.Close()

	s.backend.FailStatus("t1", errors.New("connection reset"))
	res, err := w.RunOnce(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "connection reset")
	s.Equal(Result{Polled: 1, Failed: 1}, res)
	s.Equal(models.StateAuthPending, s.state("t1"))

	events := drain(sub)
	s.Require().Len(events, 1)
	s.Equal(models.EventError, events[0].Type)
	s.Contains(events[0].Payload.Reason, "connection reset")
}

func (s *ReconcileSuite) TestSlowPollTimesOut() {
	w := s.newWorker(WithPollTimeout(20 * time.Millisecond))
	s.pending(w, "t1")

	s.backend.SetStatusDelay(2 * time.Second)
	start := time.Now()
	res, err := w.RunOnce(s.ctx)
	s.Less(time.Since(start), time.Second)
	s.Require().Error(err)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Equal(1, res.Failed)
	s.Equal(models.StateAuthPending, s.state("t1"))
}

func (s *ReconcileSuite) TestPollsRunConcurrently() {
	w := s.newWorker(WithConcurrency(3))
	for _, id := range []models.TenantID{"a", "b", "c"} {
		s.pending(w, id)
	}

	s.backend.SetStatusDelay(150 * time.Millisecond)
	start := time.Now()
	res, err := w.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, res.Polled)
	s.Less(time.Since(start), 400*time.Millisecond)
}

func (s *ReconcileSuite) TestTenantsWithoutConnectionAreSkipped() {
	w := s.newWorker()
	_, err := s.manager.Create(s.ctx, "idle", models.DisplayInfo{})
	s.Require().NoError(err)

	res, err := w.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(Result{}, res)
	s.Zero(s.backend.Queries("idle"))
}

func (s *ReconcileSuite) TestDisconnectCancelsInFlightPoll() {
	w := s.newWorker(WithPollTimeout(5 * time.Second))
	s.pending(w, "t1")
	s.backend.SetStatusDelay(5 * time.Second)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := w.RunOnce(s.ctx)
		done <- outcome{res, err}
	}()

	s.Eventually(func() bool { return s.backend.Queries("t1") == 2 }, time.Second, 5*time.Millisecond)
	s.Require().NoError(s.manager.Disconnect(s.ctx, "t1"))

	select {
	case out := <-done:
		s.NoError(out.err, "a removed tenant is not reported as a failure")
		s.Zero(out.res.Failed)
	case <-time.After(2 * time.Second):
		s.Fail("poll was not cancelled by disconnect")
	}
}

func (s *ReconcileSuite) TestStartStopsOnCancel() {
	w := s.newWorker(WithInterval(10 * time.Millisecond))
	s.pending(w, "t1")
	s.backend.SetStatus("t1", messaging.RemoteStatus{State: messaging.RemoteLoggedOut})

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	s.Eventually(func() bool { return s.state("t1") == models.StateDisconnected }, time.Second, 5*time.Millisecond)
	cancel()
	s.ErrorIs(<-done, context.Canceled)
}

type openCircuitQuerier struct{}

func (openCircuitQuerier) QueryStatus(context.Context, messaging.Conn) (messaging.RemoteStatus, error) {
	return messaging.RemoteStatus{}, circuit.ErrOpen
}

func TestOpenCircuitSkipsWithoutEvents(t *testing.T) {
	b := bus.New()
	defer b.Close()
	reg := registry.New(b)
	backend := messagingtest.NewPull()
	m := metrics.New(prometheus.NewRegistry())
	manager := service.New(reg, backend, service.WithMetrics(m))
	ctx := context.Background()

	if _, err := manager.Create(ctx, "t1", models.DisplayInfo{}); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.RequestAuthArtifact(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	sub := b.Subscribe("t1")
	defer sub.Close()

	w, err := New(reg, openCircuitQuerier{}, manager, WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	res, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Skipped != 1 || res.Polled != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if events := drain(sub); len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, messagingtest.NewPull(), nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
