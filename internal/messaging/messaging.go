// Package messaging defines the contract between the session core and an
// external messaging capability. The core never speaks a chat protocol
// itself; it drives whichever Backend it was constructed with.
//
// Every backend implements Backend. A backend that pushes connection events
// also implements Notifier; a backend that can only be asked for its status
// implements StatusQuerier and is driven by the reconciliation loop. A
// backend may implement both.
package messaging

import (
	"context"

	"chatpulse/internal/session/models"
)

//go:generate mockgen -source=messaging.go -destination=mocks/messaging_mock.go -package=mocks

// Conn is an opaque handle to one tenant's connection. It is owned by
// exactly one session handle; nothing else may address it.
type Conn interface {
	TenantID() models.TenantID
}

// Backend is the minimum a messaging capability must provide.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Open allocates a connection for tenantID. It must not block on end-user
	// authentication.
	Open(ctx context.Context, tenantID models.TenantID) (Conn, error)
	// RequestArtifact asks the backend to (re-)issue an authentication
	// artifact. The artifact itself arrives later as a SignalArtifactIssued
	// or through QueryStatus.
	RequestArtifact(ctx context.Context, conn Conn) error
	// Send delivers content to destination through conn.
	Send(ctx context.Context, conn Conn, destination, content string) error
	// Release tears conn down and frees its resources.
	Release(ctx context.Context, conn Conn) error
}

// SignalFunc receives signals pushed by a Notifier.
type SignalFunc func(Signal)

// Notifier is implemented by backends that push connection events.
type Notifier interface {
	// Subscribe registers fn for signals on conn and returns a function that
	// stops delivery. fn must not be invoked after stop returns.
	Subscribe(conn Conn, fn SignalFunc) (stop func())
}

// StatusQuerier is implemented by backends that expose a pull-style status.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, conn Conn) (RemoteStatus, error)
}
