// Package reconcile re-derives tenant state from backends that cannot push
// events. Every tick it polls each tenant that holds a connection and feeds
// the differences back through the session signal path.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chatpulse/internal/messaging"
	"chatpulse/internal/platform/tracing"
	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/registry"
	"chatpulse/pkg/platform/circuit"
)

// Tenants lists the live session handles.
type Tenants interface {
	Handles() []*registry.Handle
}

// SignalHandler applies derived signals and reports poll failures.
type SignalHandler interface {
	HandleSignal(h *registry.Handle, conn messaging.Conn, sig messaging.Signal)
	ReportError(h *registry.Handle, reason string)
}

// Result summarizes one reconciliation pass.
type Result struct {
	Polled  int
	Changed int
	Failed  int
	Skipped int
}

// Worker periodically polls a messaging.StatusQuerier.
type Worker struct {
	tenants     Tenants
	querier     messaging.StatusQuerier
	signals     SignalHandler
	interval    time.Duration
	timeout     time.Duration
	concurrency int
	tracer      tracing.Tracer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Worker)

// WithInterval overrides the polling interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithPollTimeout bounds each individual status query.
func WithPollTimeout(timeout time.Duration) Option {
	return func(w *Worker) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}

// WithConcurrency caps the number of polls in flight.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithTracer(t tracing.Tracer) Option {
	return func(w *Worker) {
		w.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New constructs a Worker. The defaults are a 30s interval, a 10s poll
// timeout and 16 concurrent polls.
func New(tenants Tenants, querier messaging.StatusQuerier, signals SignalHandler, opts ...Option) (*Worker, error) {
	if tenants == nil || querier == nil || signals == nil {
		return nil, fmt.Errorf("tenants, querier, and signals are required")
	}
	w := &Worker{
		tenants:     tenants,
		querier:     querier,
		signals:     signals,
		interval:    30 * time.Second,
		timeout:     10 * time.Second,
		concurrency: 16,
		tracer:      tracing.NewNoop(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start runs reconciliation passes until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.WarnContext(ctx, "reconciliation pass had failures",
					"failed", res.Failed,
					"polled", res.Polled,
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce polls every tenant holding a connection once. Individual poll
// failures never change tenant state; they are reported as error events
// and joined into the returned error.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	ctx, span := w.tracer.Start(ctx, tracing.SpanReconcileTick)

	var (
		mu   sync.Mutex
		res  Result
		errs []error
	)
	record := func(fn func(*Result)) {
		mu.Lock()
		defer mu.Unlock()
		fn(&res)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, h := range w.tenants.Handles() {
		conn := h.Conn()
		if conn == nil {
			continue
		}
		g.Go(func() error {
			changed, err := w.poll(gctx, h, conn)
			switch {
			case errors.Is(err, circuit.ErrOpen):
				record(func(r *Result) { r.Skipped++ })
			case err != nil:
				record(func(r *Result) { r.Polled++; r.Failed++ })
				mu.Lock()
				errs = append(errs, fmt.Errorf("poll %s: %w", h.TenantID(), err))
				mu.Unlock()
			default:
				record(func(r *Result) {
					r.Polled++
					if changed {
						r.Changed++
					}
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		tracing.Int(tracing.AttrTenantsCount, res.Polled),
		tracing.Int("reconcile.changed", res.Changed),
		tracing.Int("reconcile.failed", res.Failed),
	)
	err := errors.Join(errs...)
	span.End(err)
	return res, err
}

// poll queries one tenant. The query is cancelled when the pass ends, the
// timeout elapses, or the tenant is removed.
func (w *Worker) poll(ctx context.Context, h *registry.Handle, conn messaging.Conn) (bool, error) {
	ctx, span := w.tracer.Start(ctx, tracing.SpanReconcilePoll, tracing.String(tracing.AttrTenantID, h.TenantID().String()))
	pollCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	stop := context.AfterFunc(h.Context(), cancel)
	defer stop()

	start := time.Now()
	status, err := w.querier.QueryStatus(pollCtx, conn)
	if err != nil {
		span.End(err)
		if errors.Is(err, circuit.ErrOpen) {
			return false, err
		}
		if h.Context().Err() != nil || ctx.Err() != nil {
			// Tenant removed or pass cancelled; nothing to report.
			return false, nil
		}
		w.metrics.ObservePoll(start, true)
		w.signals.ReportError(h, "status poll failed: "+err.Error())
		return false, err
	}
	w.metrics.ObservePoll(start, false)

	before := h.Snapshot()
	for _, sig := range status.Signals(before.State) {
		w.signals.HandleSignal(h, conn, sig)
	}
	after := h.Snapshot()
	span.SetAttributes(tracing.String("remote.state", string(status.State)))
	span.End(nil)
	return before.State != after.State || before.AuthArtifact != after.AuthArtifact, nil
}
