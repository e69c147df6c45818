// Package handler exposes the session command surface over HTTP, streams
// Lifecycle Events as server-sent events, and accepts gateway webhooks.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/models"
	dErrors "chatpulse/pkg/domain-errors"
	"chatpulse/pkg/platform/httputil"
	strutil "chatpulse/pkg/platform/strings"
	"chatpulse/pkg/platform/validation"
	"chatpulse/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks

// Service is the session command surface.
type Service interface {
	Create(ctx context.Context, tenantID models.TenantID, info models.DisplayInfo) (models.Summary, error)
	RequestAuthArtifact(ctx context.Context, tenantID models.TenantID) (models.Summary, error)
	Send(ctx context.Context, tenantID models.TenantID, destination, content string) error
	Status(ctx context.Context, tenantID models.TenantID) (models.Summary, error)
	List(ctx context.Context, states ...models.State) []models.Summary
	Disconnect(ctx context.Context, tenantID models.TenantID) error
}

// EventSource hands out Lifecycle Event subscriptions.
type EventSource interface {
	Subscribe(tenantID models.TenantID) *bus.Subscription
	SubscribeAll() *bus.Subscription
}

type Handler struct {
	service   Service
	events    EventSource
	logger    *slog.Logger
	heartbeat time.Duration
}

type Option func(*Handler)

// WithHeartbeat sets the interval of SSE keep-alive comments. Default 15s.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

func New(service Service, events EventSource, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, events: events, logger: logger, heartbeat: 15 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the command routes. The event streams are registered
// separately by RegisterStreams so they can skip the request timeout.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.HandleCreate)
	r.Get("/sessions", h.HandleList)
	r.Get("/sessions/{tenantId}", h.HandleStatus)
	r.Post("/sessions/{tenantId}/auth", h.HandleRequestAuth)
	r.Post("/sessions/{tenantId}/send", h.HandleSend)
	r.Post("/sessions/{tenantId}/disconnect", h.HandleDisconnect)
}

// RegisterStreams mounts the server-sent event routes.
func (h *Handler) RegisterStreams(r chi.Router) {
	r.Get("/sessions/events", h.HandleEvents)
	r.Get("/sessions/{tenantId}/events", h.HandleTenantEvents)
}

// HandleCreate registers a tenant.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	tenantID, err := models.ParseTenantID(req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	summary, err := h.service.Create(ctx, tenantID, req.DisplayInfo.toModel())
	if err != nil {
		h.logFailure(ctx, "create session failed", err, requestID, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSessionResponse(summary))
}

// HandleList returns every session, optionally filtered by ?state=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	states, err := parseStates(r.URL.Query()["state"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summaries := h.service.List(r.Context(), states...)
	httputil.WriteJSON(w, http.StatusOK, toListResponse(summaries))
}

// HandleStatus returns one session snapshot.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenantFromPath(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Status(ctx, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(summary))
}

// HandleRequestAuth starts or restarts authentication. The artifact itself
// arrives asynchronously on the event stream, so the response is 202.
func (h *Handler) HandleRequestAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, ok := tenantFromPath(w, r)
	if !ok {
		return
	}

	summary, err := h.service.RequestAuthArtifact(ctx, tenantID)
	if err != nil {
		h.logFailure(ctx, "request auth artifact failed", err, requestID, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toSessionResponse(summary))
}

// HandleSend delivers one outbound message.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, ok := tenantFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SendRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Send(ctx, tenantID, req.Destination, req.Content); err != nil {
		h.logFailure(ctx, "send failed", err, requestID, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &SendResponse{TenantID: tenantID.String(), Status: "sent"})
}

// HandleDisconnect ends a session. Unknown tenants succeed.
func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, ok := tenantFromPath(w, r)
	if !ok {
		return
	}
	if err := h.service.Disconnect(ctx, tenantID); err != nil {
		h.logFailure(ctx, "disconnect failed", err, requestID, tenantID)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// logFailure logs server-side failures at error and caller mistakes at
// warn.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, requestID string, tenantID models.TenantID) {
	level := slog.LevelWarn
	if httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg, "error", err, "request_id", requestID, "tenant_id", tenantID.String())
}

func tenantFromPath(w http.ResponseWriter, r *http.Request) (models.TenantID, bool) {
	tenantID, err := models.ParseTenantID(chi.URLParam(r, "tenantId"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return tenantID, true
}

// parseStates accepts repeated and comma-separated state values.
func parseStates(raw []string) ([]models.State, error) {
	values := strutil.DedupeAndTrim(raw)
	if err := validation.CheckSliceCount("states", len(values), validation.MaxStateFilters); err != nil {
		return nil, err
	}
	states := make([]models.State, 0, len(values))
	for _, v := range values {
		s := models.State(v)
		if !s.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown state "+v)
		}
		states = append(states, s)
	}
	return states, nil
}
