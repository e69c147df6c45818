package models

import (
	"strings"
	"time"

	dErrors "chatpulse/pkg/domain-errors"
)

// MaxTenantIDLength bounds caller-supplied identifiers so they stay safe as
// log attributes, Redis keys and URL path segments.
const MaxTenantIDLength = 128

// TenantID is the caller-supplied opaque key of a tenant session.
type TenantID string

func (id TenantID) String() string {
	return string(id)
}

// ParseTenantID validates a raw identifier at a trust boundary.
func ParseTenantID(raw string) (TenantID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	if len(raw) > MaxTenantIDLength {
		return "", dErrors.New(dErrors.CodeBadRequest, "tenant id must be 128 characters or less")
	}
	if strings.ContainsAny(raw, "/ \t\r\n") {
		return "", dErrors.New(dErrors.CodeBadRequest, "tenant id must not contain slashes or whitespace")
	}
	return TenantID(raw), nil
}

// DisplayInfo is human-readable tenant metadata. AccountID is filled in by
// the backend once the linked messaging account is known.
type DisplayInfo struct {
	Name      string `json:"name,omitempty"`
	AccountID string `json:"accountId,omitempty"`
}

// Merge returns d with the non-empty fields of other applied on top.
func (d DisplayInfo) Merge(other DisplayInfo) DisplayInfo {
	if other.Name != "" {
		d.Name = other.Name
	}
	if other.AccountID != "" {
		d.AccountID = other.AccountID
	}
	return d
}

// Summary is a point-in-time copy of a tenant session. It shares no memory
// with the registry.
type Summary struct {
	TenantID         TenantID    `json:"tenantId"`
	State            State       `json:"state"`
	DisplayInfo      DisplayInfo `json:"displayInfo"`
	AuthArtifact     string      `json:"authArtifact,omitempty"`
	LastTransitionAt time.Time   `json:"lastTransitionAt"`
}
