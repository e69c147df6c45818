// Package tracing is a small span abstraction over OpenTelemetry. Session
// components depend on Tracer rather than the otel APIs so tests can run
// with the no-op implementation.
package tracing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span is an active trace span.
type Span interface {
	// End completes the span and marks it failed when err is non-nil. Call
	// it exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	//   ctx, span := tracer.Start(ctx, tracing.SpanSend,
	//       tracing.String(tracing.AttrTenantID, id.String()),
	//   )
	//   defer span.End(err)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to a span.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashDestination returns a short SHA-256 digest of a message destination
// so traces can be correlated without carrying phone numbers or handles.
func HashDestination(destination string) string {
	if destination == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(destination))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanCreate         = "session.create"
	SpanRequestAuth    = "session.request_auth_artifact"
	SpanSend           = "session.send"
	SpanDisconnect     = "session.disconnect"
	SpanReconcileTick  = "session.reconcile"
	SpanReconcilePoll  = "session.reconcile.poll"
	SpanShutdown       = "session.shutdown"
	SpanGatewayRequest = "gateway.request"
)

// Attribute keys.
const (
	AttrTenantID     = "tenant.id"
	AttrState        = "session.state"
	AttrBackend      = "backend.name"
	AttrDestination  = "message.destination_hash"
	AttrTenantsCount = "tenants.count"
	AttrHTTPMethod   = "http.method"
	AttrHTTPPath     = "http.path"
	AttrHTTPStatus   = "http.status_code"
)
