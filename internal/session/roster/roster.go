// Package roster persists the set of known tenants so sessions can be
// re-created after a restart. Only identity and display metadata are
// stored; lifecycle state and connections are always rebuilt from scratch.
package roster

import (
	"time"

	"chatpulse/internal/session/models"
)

// Entry is one persisted tenant.
type Entry struct {
	TenantID    models.TenantID    `json:"tenantId"`
	DisplayInfo models.DisplayInfo `json:"displayInfo"`
	CreatedAt   time.Time          `json:"createdAt"`
}
