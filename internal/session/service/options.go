package service

import (
	"log/slog"
	"time"

	"chatpulse/internal/platform/tracing"
	"chatpulse/internal/session/metrics"
)

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

func WithTracer(tracer tracing.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithRoster enables persistence of created tenants for replay at startup.
func WithRoster(store RosterStore) Option {
	return func(m *Manager) {
		m.roster = store
	}
}

// WithReleaseTimeout bounds the background release started by Disconnect.
func WithReleaseTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.releaseTimeout = d
		}
	}
}

// WithClock overrides the clock used for roster timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}
