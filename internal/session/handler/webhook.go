package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chatpulse/internal/session/models"
	dErrors "chatpulse/pkg/domain-errors"
	"chatpulse/pkg/platform/httputil"
	"chatpulse/pkg/platform/validation"
	"chatpulse/pkg/requestcontext"
)

//go:generate mockgen -source=webhook.go -destination=mocks/webhook_mock.go -package=mocks

// WebhookReceiver authenticates and applies one gateway callback.
type WebhookReceiver interface {
	HandleWebhook(ctx context.Context, tenantID models.TenantID, token string, body []byte) error
}

// WebhookHandler accepts callbacks pushed by the messaging gateway. It sits
// outside the admin guard; callbacks authenticate with a signed bearer
// token instead.
type WebhookHandler struct {
	receiver WebhookReceiver
	logger   *slog.Logger
}

func NewWebhook(receiver WebhookReceiver, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{receiver: receiver, logger: logger}
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhooks/gateway/{tenantId}", h.HandleGatewayWebhook)
}

func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, ok := tenantFromPath(w, r)
	if !ok {
		return
	}

	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validation.MaxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodePayloadTooLarge, "webhook body too large"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read webhook body"))
		return
	}

	if err := h.receiver.HandleWebhook(ctx, tenantID, token, body); err != nil {
		h.logger.WarnContext(ctx, "gateway webhook rejected",
			"error", err,
			"tenant_id", tenantID.String(),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
