// Package shutdown drains every tenant connection when the process stops.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chatpulse/internal/messaging"
	"chatpulse/internal/platform/tracing"
	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/models"
	"chatpulse/internal/session/registry"
)

// Tenants is the registry view the coordinator drains.
type Tenants interface {
	Handles() []*registry.Handle
	Remove(tenantID models.TenantID) (*registry.Handle, error)
}

// Releaser releases one backend connection.
type Releaser interface {
	Release(ctx context.Context, conn messaging.Conn) error
}

// BackgroundWaiter is implemented by components with in-flight background
// releases, such as the session manager.
type BackgroundWaiter interface {
	WaitBackground(ctx context.Context) error
}

// Outcome is the result of releasing one tenant.
type Outcome string

const (
	OutcomeReleased Outcome = "released"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeNoConn   Outcome = "no_connection"
)

// Report lists the outcome of every tenant drained.
type Report struct {
	Outcomes map[models.TenantID]Outcome
	Errors   map[models.TenantID]error
	Elapsed  time.Duration
}

// Count returns how many tenants ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, got := range r.Outcomes {
		if got == o {
			n++
		}
	}
	return n
}

// Err joins every per-tenant failure in tenant order.
func (r Report) Err() error {
	ids := make([]models.TenantID, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, fmt.Errorf("release %s: %w", id, r.Errors[id]))
	}
	return errors.Join(errs...)
}

// Coordinator releases all tenant connections with a bounded per-tenant
// timeout. A slow or failing tenant never blocks the others.
type Coordinator struct {
	tenants     Tenants
	releaser    Releaser
	background  []BackgroundWaiter
	timeout     time.Duration
	concurrency int
	tracer      tracing.Tracer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Coordinator)

// WithReleaseTimeout bounds each tenant's release. Default 5s.
func WithReleaseTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithConcurrency caps parallel releases. Default 8.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBackground registers components whose background work Drain waits
// for once every tenant has been handled.
func WithBackground(waiters ...BackgroundWaiter) Option {
	return func(c *Coordinator) {
		c.background = append(c.background, waiters...)
	}
}

func WithTracer(t tracing.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(tenants Tenants, releaser Releaser, opts ...Option) (*Coordinator, error) {
	if tenants == nil || releaser == nil {
		return nil, fmt.Errorf("tenants and releaser are required")
	}
	c := &Coordinator{
		tenants:     tenants,
		releaser:    releaser,
		timeout:     5 * time.Second,
		concurrency: 8,
		tracer:      tracing.NewNoop(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Drain detaches and releases every tenant's connection, removes the tenant
// from the registry, and then waits for registered background work. It
// never fails; per-tenant errors are logged and returned in the Report.
// Cancelling ctx abandons releases still in flight.
func (c *Coordinator) Drain(ctx context.Context) Report {
	ctx, span := c.tracer.Start(ctx, tracing.SpanShutdown)
	start := time.Now()

	handles := c.tenants.Handles()
	span.SetAttributes(tracing.Int(tracing.AttrTenantsCount, len(handles)))
	c.logger.InfoContext(ctx, "draining tenant sessions", "tenants", len(handles), "timeout", c.timeout)

	report := Report{
		Outcomes: make(map[models.TenantID]Outcome, len(handles)),
		Errors:   make(map[models.TenantID]error),
	}
	var mu sync.Mutex
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for _, h := range handles {
		conn, stop := h.DetachConn()
		if stop != nil {
			stop()
		}
		if conn == nil {
			c.finish(ctx, &mu, &report, h, OutcomeNoConn, nil)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			c.finish(ctx, &mu, &report, h, OutcomeTimedOut, ctx.Err())
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcome, err := c.release(ctx, conn)
			c.finish(ctx, &mu, &report, h, outcome, err)
		}()
	}
	wg.Wait()

	for _, w := range c.background {
		if err := w.WaitBackground(ctx); err != nil {
			c.logger.WarnContext(ctx, "background releases still pending at shutdown", "error", err)
		}
	}

	report.Elapsed = time.Since(start)
	err := report.Err()
	span.End(err)
	c.logger.InfoContext(ctx, "tenant sessions drained",
		"released", report.Count(OutcomeReleased),
		"failed", report.Count(OutcomeFailed),
		"timed_out", report.Count(OutcomeTimedOut),
		"duration_ms", report.Elapsed.Milliseconds(),
	)
	return report
}

// release runs Release in its own goroutine so a backend that ignores its
// context cannot hold the coordinator past the timeout.
func (c *Coordinator) release(ctx context.Context, conn messaging.Conn) (Outcome, error) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.releaser.Release(rctx, conn)
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return OutcomeReleased, nil
		case errors.Is(err, context.DeadlineExceeded):
			return OutcomeTimedOut, err
		default:
			return OutcomeFailed, err
		}
	case <-rctx.Done():
		return OutcomeTimedOut, rctx.Err()
	}
}

func (c *Coordinator) finish(ctx context.Context, mu *sync.Mutex, report *Report, h *registry.Handle, outcome Outcome, err error) {
	tenantID := h.TenantID()
	if _, rerr := c.tenants.Remove(tenantID); rerr != nil {
		c.logger.DebugContext(ctx, "tenant already removed", "tenant_id", tenantID.String())
	}

	mu.Lock()
	report.Outcomes[tenantID] = outcome
	if err != nil {
		report.Errors[tenantID] = err
	}
	mu.Unlock()

	if outcome != OutcomeNoConn {
		c.metrics.IncrementRelease(string(outcome))
	}
	if err != nil {
		c.logger.WarnContext(ctx, "tenant release failed",
			"tenant_id", tenantID.String(),
			"outcome", string(outcome),
			"error", err,
		)
		return
	}
	c.logger.InfoContext(ctx, "tenant released", "tenant_id", tenantID.String(), "outcome", string(outcome))
}
