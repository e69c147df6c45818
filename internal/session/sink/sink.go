// Package sink relays lifecycle events from the bus to systems outside the
// process: Kafka for analytics and Redis pub/sub for dashboards attached to
// other instances.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/models"
)

// Publisher delivers one event to an external system.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, evt models.Event) error
}

// Source is the wildcard side of the event bus.
type Source interface {
	SubscribeAll() *bus.Subscription
}

const defaultPublishTimeout = 5 * time.Second

// Relay copies every event from a wildcard subscription to a Publisher.
// Delivery is best effort: a failed publish is logged and counted, and the
// relay moves on to the next event.
type Relay struct {
	source    Source
	publisher Publisher
	types     map[models.EventType]struct{}
	redact    bool
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Relay)

// WithEventTypes restricts the relay to the given event types. Without it
// every event is relayed.
func WithEventTypes(types ...models.EventType) Option {
	return func(r *Relay) {
		if len(types) == 0 {
			return
		}
		r.types = make(map[models.EventType]struct{}, len(types))
		for _, t := range types {
			r.types[t] = struct{}{}
		}
	}
}

// WithoutAuthArtifacts blanks the authentication artifact before an event
// leaves the process. The event itself, including its state change, is
// still relayed.
func WithoutAuthArtifacts() Option {
	return func(r *Relay) {
		r.redact = true
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(source Source, publisher Publisher, opts ...Option) (*Relay, error) {
	if source == nil {
		return nil, errors.New("event source is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	r := &Relay{
		source:    source,
		publisher: publisher,
		timeout:   defaultPublishTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run relays events until ctx is cancelled or the bus is closed. It returns
// ctx.Err() on cancellation and nil when the bus closes.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.source.SubscribeAll()
	defer func() {
		sub.Close()
		if dropped := sub.Dropped(); dropped > 0 {
			r.logger.WarnContext(ctx, "sink fell behind and dropped events",
				"sink", r.publisher.Name(),
				"dropped", dropped,
			)
		}
	}()

	r.logger.InfoContext(ctx, "event sink started", "sink", r.publisher.Name())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.C():
			if !ok {
				r.logger.InfoContext(ctx, "event sink stopped", "sink", r.publisher.Name())
				return nil
			}
			r.relay(ctx, evt)
		}
	}
}

func (r *Relay) relay(ctx context.Context, evt models.Event) {
	if r.types != nil {
		if _, ok := r.types[evt.Type]; !ok {
			return
		}
	}
	if r.redact {
		evt.Payload.AuthArtifact = ""
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.publisher.Publish(pctx, evt); err != nil {
		r.metrics.IncrementSinkDelivery(r.publisher.Name(), "failed")
		r.logger.WarnContext(ctx, "event sink publish failed",
			"sink", r.publisher.Name(),
			"tenant_id", evt.TenantID.String(),
			"event_id", evt.ID,
			"event_type", string(evt.Type),
			"error", err,
		)
		return
	}
	r.metrics.IncrementSinkDelivery(r.publisher.Name(), "ok")
}
