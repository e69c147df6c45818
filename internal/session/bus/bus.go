// Package bus fans lifecycle events out to subscribers. Each subscription
// owns a bounded queue; when a consumer falls behind, the oldest queued
// event is dropped so publishers never block.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/models"
)

// DefaultBuffer is the per-subscription queue length used when none is
// configured.
const DefaultBuffer = 64

// Bus is a publish/subscribe hub for models.Event. The zero value is not
// usable; construct with New.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	buffer  int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscription queue length.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: DefaultBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber for events of tenantID.
func (b *Bus) Subscribe(tenantID models.TenantID) *Subscription {
	return b.subscribe(tenantID, false)
}

// SubscribeAll registers a subscriber for events of every tenant.
func (b *Bus) SubscribeAll() *Subscription {
	return b.subscribe("", true)
}

func (b *Bus) subscribe(tenantID models.TenantID, all bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:       b.nextID,
		tenantID: tenantID,
		all:      all,
		queue:    make(chan models.Event, b.buffer),
		bus:      b,
	}
	if b.closed {
		sub.closed = true
		close(sub.queue)
		return sub
	}
	b.subs[sub.id] = sub
	b.metrics.SetBusSubscribers(len(b.subs))
	return sub
}

// Publish delivers evt to every matching subscription without blocking.
// Callers that need per-tenant ordering must serialize their own Publish
// calls for that tenant.
func (b *Bus) Publish(evt models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.matches(evt.TenantID) {
			continue
		}
		if sub.deliver(evt) {
			b.metrics.IncrementBusDropped()
			b.logger.Debug("subscriber queue full, dropped oldest event",
				"subscription", sub.id,
				"tenant_id", evt.TenantID.String(),
			)
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.closed = true
	b.metrics.SetBusSubscribers(0)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.shut()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	b.metrics.SetBusSubscribers(len(b.subs))
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	id       uint64
	tenantID models.TenantID
	all      bool
	bus      *Bus

	mu      sync.Mutex
	queue   chan models.Event
	closed  bool
	dropped atomic.Uint64
}

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan models.Event {
	return s.queue
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s.id)
	s.shut()
}

func (s *Subscription) matches(tenantID models.TenantID) bool {
	return s.all || s.tenantID == tenantID
}

// deliver enqueues evt, evicting the oldest entry when full. It reports
// whether an event was dropped.
func (s *Subscription) deliver(evt models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	select {
	case s.queue <- evt:
		return false
	default:
	}

	select {
	case <-s.queue:
	default:
	}
	s.dropped.Add(1)

	// Only this method sends, under s.mu, so the slot just freed is still free.
	select {
	case s.queue <- evt:
	default:
	}
	return true
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}
