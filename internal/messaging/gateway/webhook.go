package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatpulse/internal/messaging"
	"chatpulse/internal/session/models"
	dErrors "chatpulse/pkg/domain-errors"
)

// WebhookAudience is the aud claim the gateway must put on callback tokens.
const WebhookAudience = "chatpulse-webhook"

const webhookLeeway = 30 * time.Second

// WebhookClaims are carried by the bearer token of every callback. Subject
// is the tenant id; ConnectionID binds the token to one gateway session.
type WebhookClaims struct {
	ConnectionID string `json:"cid"`
	jwt.RegisteredClaims
}

// WebhookEvent is the callback body.
type WebhookEvent struct {
	Type         string          `json:"type"`
	ConnectionID string          `json:"connectionId"`
	QR           string          `json:"qr,omitempty"`
	AccountID    string          `json:"accountId,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Message      *WebhookMessage `json:"message,omitempty"`
}

type WebhookMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleWebhook verifies token, decodes body and delivers the resulting
// signal to the subscriber of the referenced connection.
func (b *Backend) HandleWebhook(ctx context.Context, tenantID models.TenantID, token string, body []byte) error {
	claims, err := b.verifyWebhookToken(token)
	if err != nil {
		return err
	}
	if claims.Subject != tenantID.String() {
		return dErrors.New(dErrors.CodeUnauthorized, "webhook token subject does not match tenant")
	}

	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid webhook body")
	}
	if evt.ConnectionID != claims.ConnectionID {
		return dErrors.New(dErrors.CodeUnauthorized, "webhook token does not cover this connection")
	}

	sig, err := evt.signal()
	if err != nil {
		return err
	}

	sub, ok := b.subscriber(evt.ConnectionID)
	if !ok || sub.conn.TenantID() != tenantID {
		b.logger.DebugContext(ctx, "webhook for unknown connection",
			"tenant_id", tenantID.String(),
			"connection_id", evt.ConnectionID,
		)
		return dErrors.New(dErrors.CodeNotFound, "unknown connection")
	}
	b.metrics.observeWebhook(strings.ToLower(evt.Type))
	sub.fn(sig)
	return nil
}

func (b *Backend) verifyWebhookToken(token string) (*WebhookClaims, error) {
	if len(b.webhookSecret) == 0 {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "webhooks are not enabled")
	}
	claims := &WebhookClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return b.webhookSecret, nil
	},
		jwt.WithAudience(WebhookAudience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(webhookLeeway),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "webhook token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid webhook token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid webhook token")
	}
	return claims, nil
}

func (e WebhookEvent) signal() (messaging.Signal, error) {
	switch strings.ToLower(e.Type) {
	case "qr":
		if e.QR == "" {
			return messaging.Signal{}, dErrors.New(dErrors.CodeBadRequest, "qr event without qr code")
		}
		return messaging.Signal{Kind: messaging.SignalArtifactIssued, Artifact: e.QR}, nil
	case "authorized":
		return messaging.Signal{Kind: messaging.SignalAuthAccepted, AccountID: e.AccountID}, nil
	case "ready":
		return messaging.Signal{Kind: messaging.SignalReady, AccountID: e.AccountID}, nil
	case "auth_failed":
		return messaging.Signal{Kind: messaging.SignalAuthRejected, Reason: e.Reason}, nil
	case "logged_out":
		return messaging.Signal{Kind: messaging.SignalLoggedOut, Reason: e.Reason}, nil
	case "error":
		return messaging.Signal{Kind: messaging.SignalError, Reason: e.Reason}, nil
	case "message":
		if e.Message == nil {
			return messaging.Signal{}, dErrors.New(dErrors.CodeBadRequest, "message event without message")
		}
		return messaging.Signal{Kind: messaging.SignalMessage, Message: &models.Message{
			ID:         e.Message.ID,
			From:       e.Message.From,
			Content:    e.Message.Text,
			ReceivedAt: e.Message.Timestamp,
		}}, nil
	default:
		return messaging.Signal{}, dErrors.New(dErrors.CodeBadRequest, "unknown webhook event type "+e.Type)
	}
}

// SignWebhookToken issues a callback token the way the gateway does. It is
// used by the local gateway simulator and tests.
func SignWebhookToken(secret []byte, tenantID models.TenantID, connectionID string, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, WebhookClaims{
		ConnectionID: connectionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID.String(),
			Audience:  jwt.ClaimStrings{WebhookAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}
