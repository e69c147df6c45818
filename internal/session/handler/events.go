package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatpulse/internal/session/bus"
	"chatpulse/pkg/platform/httputil"
	"chatpulse/pkg/requestcontext"
)

// eventSnapshot is sent first on a per-tenant stream so clients start from
// the current state.
const eventSnapshot = "snapshot"

// HandleEvents streams Lifecycle Events of every tenant.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	sub := h.events.SubscribeAll()
	defer sub.Close()
	h.stream(w, r, sub, nil)
}

// HandleTenantEvents streams Lifecycle Events of one tenant, preceded by a
// snapshot of its current state.
func (h *Handler) HandleTenantEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromPath(w, r)
	if !ok {
		return
	}
	// Subscribe before reading the snapshot so no transition falls between.
	sub := h.events.Subscribe(tenantID)
	defer sub.Close()

	summary, err := h.service.Status(r.Context(), tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.stream(w, r, sub, toSessionResponse(summary))
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, sub *bus.Subscription, snapshot *SessionResponse) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.ErrorContext(ctx, "response writer does not support streaming")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	requestID := requestcontext.RequestID(ctx)
	h.logger.InfoContext(ctx, "event stream started", "request_id", requestID)
	defer h.logger.InfoContext(ctx, "event stream ended", "request_id", requestID, "dropped", sub.Dropped())

	if snapshot != nil {
		if err := writeSSE(w, flusher, "", eventSnapshot, snapshot); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeSSE(w, flusher, evt.ID, string(evt.Type), evt); err != nil {
				h.logWriteErr(ctx, err, requestID)
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				h.logWriteErr(ctx, err, requestID)
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) logWriteErr(ctx context.Context, err error, requestID string) {
	if ctx.Err() != nil {
		return
	}
	h.logger.WarnContext(ctx, "event stream write failed", "error", err, "request_id", requestID)
}

// writeSSE writes one frame: optional id, event name, JSON data.
func writeSSE(w io.Writer, flusher http.Flusher, id, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
