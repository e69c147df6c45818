// Package admin guards the session command surface with a shared operator
// token.
package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"chatpulse/pkg/requestcontext"
)

const (
	HeaderToken   = "X-Admin-Token"
	HeaderActorID = "X-Admin-Actor-ID"

	subjectOperator = "operator"
)

// IsAdminRequest reports whether RequireAdminToken authorized ctx.
func IsAdminRequest(ctx context.Context) bool {
	return requestcontext.AdminSubject(ctx) != ""
}

// ActorID returns the operator identity recorded for audit logs, or "" when
// the caller did not send one.
func ActorID(ctx context.Context) string {
	subject := requestcontext.AdminSubject(ctx)
	if subject == subjectOperator {
		return ""
	}
	return strings.TrimPrefix(subject, subjectOperator+":")
}

// RequireAdminToken rejects requests whose X-Admin-Token does not match
// expectedToken. An empty expectedToken disables the guard, which is only
// appropriate for local development.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if expectedToken != "" {
				token := r.Header.Get(HeaderToken)
				if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
					logger.WarnContext(ctx, "admin token mismatch",
						"request_id", requestcontext.RequestID(ctx),
						"path", r.URL.Path,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
					return
				}
			}

			subject := subjectOperator
			if actorID := strings.TrimSpace(r.Header.Get(HeaderActorID)); actorID != "" {
				subject += ":" + actorID
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdminSubject(ctx, subject)))
		})
	}
}
