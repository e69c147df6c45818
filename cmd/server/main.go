package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"chatpulse/internal/messaging"
	"chatpulse/internal/messaging/simulator"
	"chatpulse/internal/platform/config"
	"chatpulse/internal/platform/health"
	"chatpulse/internal/platform/logger"
	"chatpulse/internal/platform/tracing"
	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/registry"
	"chatpulse/internal/session/service"
	"chatpulse/internal/session/workers/reconcile"
	"chatpulse/internal/session/workers/shutdown"
)

const redisStatsInterval = 15 * time.Second

// main wires high-level dependencies, serves HTTP until SIGINT/SIGTERM and
// then drains every tenant connection. Business logic lives in
// internal/session.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatpulse:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log, closeLog, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck // nothing left to log to
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing chatpulse",
		"addr", cfg.Addr,
		"instance_id", cfg.InstanceID,
		"environment", cfg.Environment,
		"version", health.Version,
	)

	shutdownTracing, err := tracing.SetupProvider(ctx, tracing.ProviderConfig{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: health.Version,
		InstanceID:     cfg.InstanceID,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return err
	}
	tracer := tracing.NewOTel()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sessionMetrics := metrics.New(promReg)
	healthHandler := health.New(cfg.Environment)

	infra, err := openInfrastructure(ctx, cfg, promReg, healthHandler, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	eventBus := bus.New(
		bus.WithBuffer(cfg.Session.SubscriberBuffer),
		bus.WithMetrics(sessionMetrics),
		bus.WithLogger(log),
	)
	sessions := registry.New(eventBus,
		registry.WithMetrics(sessionMetrics),
		registry.WithLogger(log),
	)

	backend, gw, err := newBackend(cfg, promReg, tracer, healthHandler, log)
	if err != nil {
		return err
	}

	managerOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(sessionMetrics),
		service.WithTracer(tracer),
		service.WithReleaseTimeout(cfg.Session.ReleaseTimeout),
	}
	if infra.roster != nil {
		managerOpts = append(managerOpts, service.WithRoster(infra.roster))
	}
	manager := service.New(sessions, backend, managerOpts...)

	if infra.roster != nil {
		restored, err := manager.Restore(ctx)
		if err != nil {
			log.Warn("roster replay incomplete", "restored", restored, "error", err)
		} else {
			log.Info("roster replayed", "restored", restored)
		}
	}

	// Relays outlive the run group so they still forward the events emitted
	// while tenants are drained; closing the bus stops them.
	var relays sync.WaitGroup
	for _, relay := range infra.relays(eventBus, sessionMetrics, log) {
		relays.Add(1)
		go func() {
			defer relays.Done()
			if err := relay.Run(context.WithoutCancel(ctx)); err != nil {
				log.Error("event sink stopped", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	if querier, ok := backend.(messaging.StatusQuerier); ok {
		worker, err := reconcile.New(sessions, querier, manager,
			reconcile.WithInterval(cfg.Session.PollInterval),
			reconcile.WithPollTimeout(cfg.Session.PollTimeout),
			reconcile.WithConcurrency(cfg.Session.PollConcurrency),
			reconcile.WithTracer(tracer),
			reconcile.WithMetrics(sessionMetrics),
			reconcile.WithLogger(log),
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return ignoreCanceled(worker.Start(gctx)) })
	}
	if infra.redis != nil {
		g.Go(func() error { return ignoreCanceled(infra.redis.RunPoolStats(gctx, redisStatsInterval)) })
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: newRouter(routerDeps{
			cfg:      cfg,
			manager:  manager,
			events:   eventBus,
			gateway:  gw,
			health:   healthHandler,
			registry: promReg,
			logger:   log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		healthHandler.SetDraining()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		// Event streams only end when their request context does, which
		// Shutdown does not cancel; BaseContext is already done here.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	if runErr != nil {
		log.Error("server stopped with error", "error", runErr)
	}

	drainErr := drain(sessions, backend, manager, cfg, tracer, sessionMetrics, log)
	if sim, ok := backend.(*simulator.Backend); ok {
		sim.Close()
	}

	eventBus.Close()
	relays.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn("trace exporter shutdown failed", "error", err)
	}

	log.Info("server stopped")
	return errors.Join(runErr, drainErr)
}

func drain(
	sessions *registry.Registry,
	backend messaging.Backend,
	manager *service.Manager,
	cfg config.Server,
	tracer tracing.Tracer,
	m *metrics.Metrics,
	log *slog.Logger,
) error {
	coordinator, err := shutdown.New(sessions, backend,
		shutdown.WithReleaseTimeout(cfg.Session.ReleaseTimeout),
		shutdown.WithBackground(manager),
		shutdown.WithTracer(tracer),
		shutdown.WithMetrics(m),
		shutdown.WithLogger(log),
	)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	report := coordinator.Drain(ctx)
	log.Info("tenants drained",
		"released", report.Count(shutdown.OutcomeReleased),
		"failed", report.Count(shutdown.OutcomeFailed),
		"timed_out", report.Count(shutdown.OutcomeTimedOut),
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)
	return report.Err()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
