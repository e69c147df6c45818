// Package service is the command surface of the session core. Manager
// serializes commands per tenant, drives the messaging backend, and is the
// single entry point through which backend signals reach the state machine.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chatpulse/internal/messaging"
	"chatpulse/internal/platform/tracing"
	"chatpulse/internal/sentinel"
	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/models"
	"chatpulse/internal/session/registry"
	"chatpulse/internal/session/roster"
	dErrors "chatpulse/pkg/domain-errors"
	psync "chatpulse/pkg/platform/sync"
	"chatpulse/pkg/requestcontext"
)

const defaultReleaseTimeout = 5 * time.Second

// Manager implements the tenant session commands.
type Manager struct {
	registry *registry.Registry
	backend  messaging.Backend
	notifier messaging.Notifier
	locks    *psync.KeyedMutex

	roster         RosterStore
	tracer         tracing.Tracer
	metrics        *metrics.Metrics
	logger         *slog.Logger
	releaseTimeout time.Duration
	now            func() time.Time

	background sync.WaitGroup
}

// New creates a Manager. When backend also implements messaging.Notifier,
// every opened connection is subscribed for pushed signals.
func New(reg *registry.Registry, backend messaging.Backend, opts ...Option) *Manager {
	m := &Manager{
		registry:       reg,
		backend:        backend,
		locks:          psync.NewKeyedMutex(),
		tracer:         tracing.NewNoop(),
		logger:         slog.Default(),
		releaseTimeout: defaultReleaseTimeout,
		now:            time.Now,
	}
	if n, ok := backend.(messaging.Notifier); ok {
		m.notifier = n
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a new tenant in the created state. No connection is
// opened until RequestAuthArtifact.
func (m *Manager) Create(ctx context.Context, tenantID models.TenantID, info models.DisplayInfo) (models.Summary, error) {
	ctx, span := m.tracer.Start(ctx, tracing.SpanCreate, tracing.String(tracing.AttrTenantID, tenantID.String()))
	var err error
	defer func() { span.End(err) }()

	m.locks.Lock(tenantID.String())
	defer m.locks.Unlock(tenantID.String())

	h, err := m.registry.Create(tenantID, info)
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			err = dErrors.New(dErrors.CodeAlreadyExists, "tenant already exists")
			return models.Summary{}, err
		}
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tenant")
		return models.Summary{}, err
	}

	snap := h.Snapshot()
	m.saveRoster(ctx, snap)
	m.logAudit(ctx, "tenant_created", "tenant_id", tenantID.String())
	return snap, nil
}

// RequestAuthArtifact asks the backend to issue an authentication artifact
// for tenantID, opening a fresh connection when the tenant has none or its
// previous attempt ended. The artifact arrives later as an event.
func (m *Manager) RequestAuthArtifact(ctx context.Context, tenantID models.TenantID) (models.Summary, error) {
	ctx, span := m.tracer.Start(ctx, tracing.SpanRequestAuth,
		tracing.String(tracing.AttrTenantID, tenantID.String()),
		tracing.String(tracing.AttrBackend, m.backend.Name()),
	)
	var err error
	defer func() { span.End(err) }()

	m.locks.Lock(tenantID.String())
	defer m.locks.Unlock(tenantID.String())

	h, err := m.registry.Get(tenantID)
	if err != nil {
		err = wrapLookupErr(err)
		return models.Summary{}, err
	}

	state, conn := h.StateAndConn()
	if !state.AcceptsAuthRequest() {
		err = dErrors.New(dErrors.CodeInvalidState, "tenant is already authenticated; disconnect first")
		return models.Summary{}, err
	}
	span.SetAttributes(tracing.String(tracing.AttrState, state.String()))

	if state == models.StateCreated {
		h.Apply(models.TriggerConnectionRequested, registry.Update{})
	}

	if conn == nil || state.IsTerminal() {
		conn, err = m.openConn(ctx, h)
		if err != nil {
			return h.Snapshot(), err
		}
	}

	if err = m.backend.RequestArtifact(ctx, conn); err != nil {
		m.reportError(h, "auth artifact request failed: "+err.Error())
		err = wrapBackendErr(err, "messaging backend could not issue an auth artifact")
		return h.Snapshot(), err
	}

	m.logAudit(ctx, "auth_artifact_requested", "tenant_id", tenantID.String(), "state", state.String())
	return h.Snapshot(), nil
}

// openConn replaces the handle's connection with a freshly opened one. The
// previous connection, if any, is released in the background.
func (m *Manager) openConn(ctx context.Context, h *registry.Handle) (messaging.Conn, error) {
	conn, err := m.backend.Open(ctx, h.TenantID())
	if err != nil {
		m.reportError(h, "open connection failed: "+err.Error())
		return nil, wrapBackendErr(err, "messaging backend unavailable")
	}

	var stop func()
	if m.notifier != nil {
		stop = m.notifier.Subscribe(conn, func(sig messaging.Signal) {
			m.HandleSignal(h, conn, sig)
		})
	}

	prevConn, prevStop := h.SwapConn(conn, stop)
	if prevStop != nil {
		prevStop()
	}
	if prevConn != nil {
		m.releaseAsync(h.TenantID(), prevConn)
	}
	return conn, nil
}

// Send forwards content to destination through the tenant's connection.
// It requires the connected state and never changes the state itself.
func (m *Manager) Send(ctx context.Context, tenantID models.TenantID, destination, content string) error {
	ctx, span := m.tracer.Start(ctx, tracing.SpanSend,
		tracing.String(tracing.AttrTenantID, tenantID.String()),
		tracing.String(tracing.AttrDestination, tracing.HashDestination(destination)),
	)
	var err error
	defer func() { span.End(err) }()

	if strings.TrimSpace(destination) == "" || content == "" {
		err = dErrors.New(dErrors.CodeValidation, "destination and content are required")
		return err
	}

	h, err := m.registry.Get(tenantID)
	if err != nil {
		err = wrapLookupErr(err)
		return err
	}

	state, conn := h.StateAndConn()
	if state != models.StateConnected || conn == nil {
		err = dErrors.New(dErrors.CodeNotConnected, "tenant is not connected")
		return err
	}

	start := time.Now()
	if err = m.backend.Send(ctx, conn, destination, content); err != nil {
		m.metrics.ObserveSend(start, "failed")
		m.logger.WarnContext(ctx, "message delivery failed",
			"tenant_id", tenantID.String(),
			"error", err,
		)
		err = &dErrors.Error{Code: dErrors.CodeDeliveryFailed, Message: "message delivery failed", Err: err}
		return err
	}
	m.metrics.ObserveSend(start, "ok")
	return nil
}

// Status returns a snapshot of one tenant. It never performs I/O.
func (m *Manager) Status(_ context.Context, tenantID models.TenantID) (models.Summary, error) {
	h, err := m.registry.Get(tenantID)
	if err != nil {
		return models.Summary{}, wrapLookupErr(err)
	}
	return h.Snapshot(), nil
}

// List returns a snapshot of every tenant, optionally restricted to the
// given states.
func (m *Manager) List(_ context.Context, states ...models.State) []models.Summary {
	all := m.registry.List()
	if len(states) == 0 {
		return all
	}
	out := all[:0]
	for _, s := range all {
		for _, want := range states {
			if s.State == want {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Disconnect ends the tenant's session. The backend is told to release the
// connection before the tenant is removed; the release itself runs in the
// background and callers do not wait for it. Disconnecting an unknown tenant
// is a no-op.
func (m *Manager) Disconnect(ctx context.Context, tenantID models.TenantID) error {
	ctx, span := m.tracer.Start(ctx, tracing.SpanDisconnect, tracing.String(tracing.AttrTenantID, tenantID.String()))
	defer span.End(nil)

	m.locks.Lock(tenantID.String())
	defer m.locks.Unlock(tenantID.String())

	h, err := m.registry.Get(tenantID)
	if err != nil {
		return nil
	}

	conn, stop := h.DetachConn()
	if stop != nil {
		stop()
	}
	if !h.State().IsTerminal() {
		h.Apply(models.TriggerDisconnectCommand, registry.Update{Reason: "disconnect requested"})
	}
	if conn != nil {
		m.releaseAsync(tenantID, conn)
	}
	if _, err := m.registry.Remove(tenantID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		m.logger.ErrorContext(ctx, "failed to remove tenant", "tenant_id", tenantID.String(), "error", err)
	}
	m.deleteRoster(ctx, tenantID)
	m.logAudit(ctx, "tenant_disconnected", "tenant_id", tenantID.String())
	return nil
}

// Restore re-creates every tenant recorded in the roster. Tenants already
// present are skipped. It returns the number of tenants restored.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.roster == nil {
		return 0, nil
	}
	entries, err := m.roster.List(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roster")
	}

	restored := 0
	for _, e := range entries {
		m.locks.Lock(e.TenantID.String())
		_, err := m.registry.Create(e.TenantID, e.DisplayInfo)
		m.locks.Unlock(e.TenantID.String())
		if err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				continue
			}
			return restored, dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore tenant")
		}
		restored++
	}
	if restored > 0 {
		m.logger.InfoContext(ctx, "tenants restored from roster", "count", restored)
	}
	return restored, nil
}

// HandleSignal applies one backend signal to h. Signals from a connection
// the handle no longer owns are dropped; ownership is checked under the
// handle lock together with the state change, so a signal racing Disconnect
// or a connection swap cannot land after it. It is safe for concurrent use
// and is the only path by which backend activity changes tenant state.
func (m *Manager) HandleSignal(h *registry.Handle, conn messaging.Conn, sig messaging.Signal) {
	switch sig.Kind {
	case messaging.SignalArtifactIssued:
		h.IssueArtifactFrom(conn, sig.Artifact)
	case messaging.SignalMessage:
		if sig.Message == nil {
			return
		}
		if _, ok := h.EmitFrom(conn, models.EventMessageReceived, models.Payload{Message: sig.Message}); ok {
			m.metrics.IncrementMessagesReceived()
		}
	case messaging.SignalError:
		if _, ok := h.EmitFrom(conn, models.EventError, models.Payload{Reason: sig.Reason}); ok {
			m.metrics.IncrementBackendErrorEvent()
			m.logger.Warn("session error", "tenant_id", h.TenantID().String(), "reason", sig.Reason)
		}
	default:
		trigger, ok := sig.Trigger()
		if !ok {
			m.logger.Warn("unknown backend signal", "tenant_id", h.TenantID().String(), "signal", string(sig.Kind))
			return
		}
		upd := registry.Update{Reason: sig.Reason}
		if sig.AccountID != "" {
			upd.Identity = &models.DisplayInfo{AccountID: sig.AccountID}
		}
		evt, applied := h.ApplyFrom(conn, trigger, upd)
		if applied && evt.Payload.Identity != nil {
			m.updateRosterIdentity(h)
		}
	}
}

// ReportError surfaces an asynchronous failure for h as an error event.
// The tenant state is not changed.
func (m *Manager) ReportError(h *registry.Handle, reason string) {
	m.reportError(h, reason)
}

func (m *Manager) reportError(h *registry.Handle, reason string) {
	if _, ok := h.Emit(models.EventError, models.Payload{Reason: reason}); ok {
		m.metrics.IncrementBackendErrorEvent()
	}
	m.logger.Warn("session error", "tenant_id", h.TenantID().String(), "reason", reason)
}

func (m *Manager) releaseAsync(tenantID models.TenantID, conn messaging.Conn) {
	m.logger.Debug("connection release requested", "tenant_id", tenantID.String())
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.releaseTimeout)
		defer cancel()

		if err := m.backend.Release(ctx, conn); err != nil {
			m.metrics.IncrementRelease("failed")
			m.logger.Warn("connection release failed", "tenant_id", tenantID.String(), "error", err)
			return
		}
		m.metrics.IncrementRelease("ok")
		m.logger.Info("connection released", "tenant_id", tenantID.String())
	}()
}

// WaitBackground blocks until every in-flight background release finished
// or ctx ends.
func (m *Manager) WaitBackground(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) saveRoster(ctx context.Context, snap models.Summary) {
	if m.roster == nil {
		return
	}
	entry := roster.Entry{TenantID: snap.TenantID, DisplayInfo: snap.DisplayInfo, CreatedAt: m.now()}
	if err := m.roster.Save(ctx, entry); err != nil {
		m.logger.WarnContext(ctx, "failed to persist tenant to roster", "tenant_id", snap.TenantID.String(), "error", err)
	}
}

func (m *Manager) deleteRoster(ctx context.Context, tenantID models.TenantID) {
	if m.roster == nil {
		return
	}
	if err := m.roster.Delete(ctx, tenantID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		m.logger.WarnContext(ctx, "failed to remove tenant from roster", "tenant_id", tenantID.String(), "error", err)
	}
}

func (m *Manager) updateRosterIdentity(h *registry.Handle) {
	if m.roster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.Context(), m.releaseTimeout)
	defer cancel()
	m.saveRoster(ctx, h.Snapshot())
}

func (m *Manager) logAudit(ctx context.Context, event string, attributes ...any) {
	if m.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	attributes = append(attributes, "event", event, "log_type", "audit")
	m.logger.InfoContext(ctx, event, attributes...)
}
