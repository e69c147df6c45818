package service

import (
	"context"

	"chatpulse/internal/session/models"
	"chatpulse/internal/session/roster"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/service_mock.go -package=mocks

// RosterStore persists the tenants that should be re-created on startup.
type RosterStore interface {
	Save(ctx context.Context, e roster.Entry) error
	Delete(ctx context.Context, tenantID models.TenantID) error
	List(ctx context.Context) ([]roster.Entry, error)
}
