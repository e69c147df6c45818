// Package registry owns the in-memory set of tenant sessions. Every state
// change goes through Handle.Apply, which validates the transition against
// the lifecycle table and publishes the resulting event while still holding
// the handle lock, so subscribers observe a tenant's events in the order the
// transitions happened.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chatpulse/internal/messaging"
	"chatpulse/internal/sentinel"
	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/models"
	"chatpulse/pkg/platform/ids"
)

// Publisher receives every event a handle emits.
type Publisher interface {
	Publish(evt models.Event)
}

// Registry maps tenant ids to live session handles. The registry lock only
// guards the map; per-tenant state lives behind each handle's own lock.
type Registry struct {
	mu      sync.RWMutex
	handles map[models.TenantID]*Handle

	publisher Publisher
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Registry)

// WithClock overrides the clock used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry that publishes to publisher.
func New(publisher Publisher, opts ...Option) *Registry {
	r := &Registry{
		handles:   make(map[models.TenantID]*Handle),
		publisher: publisher,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new session in StateCreated. It returns
// sentinel.ErrAlreadyExists when tenantID is taken.
func (r *Registry) Create(tenantID models.TenantID, info models.DisplayInfo) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[tenantID]; exists {
		return nil, sentinel.ErrAlreadyExists
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		tenantID:         tenantID,
		ctx:              ctx,
		cancel:           cancel,
		state:            models.StateCreated,
		display:          info,
		lastTransitionAt: r.now(),
		reg:              r,
	}
	r.handles[tenantID] = h
	r.metrics.IncrementTenantCreated(models.StateCreated.String())
	return h, nil
}

// Get returns the handle for tenantID or sentinel.ErrNotFound.
func (r *Registry) Get(tenantID models.TenantID) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return h, nil
}

// Handles returns the live handles ordered by tenant id.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].tenantID < out[j].tenantID })
	return out
}

// List returns a snapshot of every session ordered by tenant id.
func (r *Registry) List() []models.Summary {
	handles := r.Handles()
	out := make([]models.Summary, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Snapshot())
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Remove unregisters tenantID and cancels the handle's context. Events
// applied to the handle afterwards are discarded.
func (r *Registry) Remove(tenantID models.TenantID) (*Handle, error) {
	r.mu.Lock()
	h, ok := r.handles[tenantID]
	if ok {
		delete(r.handles, tenantID)
	}
	r.mu.Unlock()

	if !ok {
		return nil, sentinel.ErrNotFound
	}

	h.mu.Lock()
	h.removed = true
	state := h.state
	h.mu.Unlock()
	h.cancel()

	r.metrics.IncrementTenantRemoved(state.String())
	r.logger.Debug("tenant removed", "tenant_id", tenantID.String(), "state", state.String())
	return h, nil
}

// Handle is the single owner of one tenant's session state and connection.
type Handle struct {
	tenantID models.TenantID
	ctx      context.Context
	cancel   context.CancelFunc
	reg      *Registry

	mu               sync.Mutex
	state            models.State
	display          models.DisplayInfo
	artifact         string
	lastTransitionAt time.Time
	conn             messaging.Conn
	stop             func()
	removed          bool
}

// Update carries the data that accompanies a trigger.
type Update struct {
	Artifact string
	Identity *models.DisplayInfo
	Reason   string
}

func (h *Handle) TenantID() models.TenantID {
	return h.tenantID
}

// Context is cancelled when the handle is removed from the registry.
// Background work bound to the session should derive from it.
func (h *Handle) Context() context.Context {
	return h.ctx
}

func (h *Handle) State() models.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Snapshot returns a copy of the handle's observable state.
func (h *Handle) Snapshot() models.Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return models.Summary{
		TenantID:         h.tenantID,
		State:            h.state,
		DisplayInfo:      h.display,
		AuthArtifact:     h.artifact,
		LastTransitionAt: h.lastTransitionAt,
	}
}

// Conn returns the current connection, or nil.
func (h *Handle) Conn() messaging.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

// SwapConn installs conn and its signal subscription stop function,
// returning whatever was installed before. Callers release the previous
// connection themselves.
func (h *Handle) SwapConn(conn messaging.Conn, stop func()) (messaging.Conn, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prevConn, prevStop := h.conn, h.stop
	h.conn, h.stop = conn, stop
	return prevConn, prevStop
}

// DetachConn clears and returns the current connection and stop function.
func (h *Handle) DetachConn() (messaging.Conn, func()) {
	return h.SwapConn(nil, nil)
}

// StateAndConn returns the state and connection as one consistent read.
func (h *Handle) StateAndConn() (models.State, messaging.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.conn
}

// ownsLocked reports whether conn may still drive the handle: it is the
// installed connection and the handle has not been removed. h.mu is held.
func (h *Handle) ownsLocked(conn messaging.Conn) bool {
	if !h.removed && h.conn != nil && h.conn == conn {
		return true
	}
	h.reg.logger.Debug("signal from stale connection ignored", "tenant_id", h.tenantID.String())
	return false
}

// Apply moves the session along the lifecycle table. It returns the
// published event and true when the transition was accepted; otherwise the
// session is left untouched and no event is emitted.
func (h *Handle) Apply(trigger models.Trigger, upd Update) (models.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.removed {
		return models.Event{}, false
	}
	return h.applyLocked(trigger, upd)
}

// ApplyFrom is Apply for a trigger reported by conn. It is rejected when
// conn was detached or replaced before the handle lock was taken.
func (h *Handle) ApplyFrom(conn messaging.Conn, trigger models.Trigger, upd Update) (models.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.ownsLocked(conn) {
		return models.Event{}, false
	}
	return h.applyLocked(trigger, upd)
}

func (h *Handle) applyLocked(trigger models.Trigger, upd Update) (models.Event, bool) {
	from := h.state
	to, ok := models.Next(from, trigger)
	if !ok {
		h.reg.metrics.IncrementIgnoredTrigger(string(trigger), from.String())
		h.reg.logger.Debug("trigger ignored in current state",
			"tenant_id", h.tenantID.String(),
			"trigger", string(trigger),
			"state", from.String(),
		)
		return models.Event{}, false
	}

	now := h.reg.now()
	h.state = to
	h.lastTransitionAt = now
	if to == models.StateAuthPending {
		h.artifact = upd.Artifact
	} else {
		h.artifact = ""
	}

	payload := models.Payload{Reason: upd.Reason}
	if trigger == models.TriggerArtifactIssued {
		payload.AuthArtifact = upd.Artifact
	}
	if upd.Identity != nil {
		h.display = h.display.Merge(*upd.Identity)
		identity := h.display
		payload.Identity = &identity
	}

	evt := models.Event{
		ID:        ids.NewULID(now),
		TenantID:  h.tenantID,
		Type:      models.EventTypeFor(trigger),
		FromState: from,
		ToState:   to,
		Payload:   payload,
		Timestamp: now,
	}
	h.reg.metrics.ObserveTransition(string(trigger), from.String(), to.String())
	h.reg.publisher.Publish(evt)
	return evt, true
}

// RefreshArtifact replaces the artifact of a session that is already
// waiting for authentication. The state does not change; subscribers get
// a new authArtifactIssued event. It is a no-op in any other state.
func (h *Handle) RefreshArtifact(artifact string) (models.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.removed || h.state != models.StateAuthPending {
		return models.Event{}, false
	}
	return h.refreshLocked(artifact)
}

// IssueArtifactFrom records an artifact reported by conn: a transition into
// authPending when the state allows it, a refresh when the session is
// already pending. Artifacts from a connection the handle no longer owns are
// dropped.
func (h *Handle) IssueArtifactFrom(conn messaging.Conn, artifact string) (models.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.ownsLocked(conn) {
		return models.Event{}, false
	}
	if h.state == models.StateAuthPending {
		return h.refreshLocked(artifact)
	}
	return h.applyLocked(models.TriggerArtifactIssued, Update{Artifact: artifact})
}

func (h *Handle) refreshLocked(artifact string) (models.Event, bool) {
	if artifact == "" || artifact == h.artifact {
		return models.Event{}, false
	}

	now := h.reg.now()
	h.artifact = artifact
	evt := models.Event{
		ID:        ids.NewULID(now),
		TenantID:  h.tenantID,
		Type:      models.EventAuthArtifactIssued,
		FromState: h.state,
		ToState:   h.state,
		Payload:   models.Payload{AuthArtifact: artifact},
		Timestamp: now,
	}
	h.reg.metrics.IncrementArtifactRefresh()
	h.reg.publisher.Publish(evt)
	return evt, true
}

// Emit publishes a non-transition event (an inbound message or an error)
// tagged with the session's current state.
func (h *Handle) Emit(typ models.EventType, payload models.Payload) (models.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.removed {
		return models.Event{}, false
	}
	return h.emitLocked(typ, payload)
}

// EmitFrom is Emit for an event reported by conn.
func (h *Handle) EmitFrom(conn messaging.Conn, typ models.EventType, payload models.Payload) (models.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.ownsLocked(conn) {
		return models.Event{}, false
	}
	return h.emitLocked(typ, payload)
}

func (h *Handle) emitLocked(typ models.EventType, payload models.Payload) (models.Event, bool) {
	now := h.reg.now()
	evt := models.Event{
		ID:        ids.NewULID(now),
		TenantID:  h.tenantID,
		Type:      typ,
		FromState: h.state,
		Payload:   payload,
		Timestamp: now,
	}
	h.reg.publisher.Publish(evt)
	return evt, true
}

// SetDisplayInfo merges info into the session's display metadata without
// emitting an event.
func (h *Handle) SetDisplayInfo(info models.DisplayInfo) models.DisplayInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.display = h.display.Merge(info)
	return h.display
}
