package handler

import (
	"time"

	"chatpulse/internal/session/models"
)

type DisplayInfoResponse struct {
	Name      string `json:"name,omitempty"`
	AccountID string `json:"accountId,omitempty"`
}

type SessionResponse struct {
	TenantID         string              `json:"tenantId"`
	State            string              `json:"state"`
	DisplayInfo      DisplayInfoResponse `json:"displayInfo"`
	AuthArtifact     string              `json:"authArtifact,omitempty"`
	LastTransitionAt time.Time           `json:"lastTransitionAt"`
}

type ListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
}

type SendResponse struct {
	TenantID string `json:"tenantId"`
	Status   string `json:"status"`
}

func toSessionResponse(s models.Summary) *SessionResponse {
	return &SessionResponse{
		TenantID: s.TenantID.String(),
		State:    s.State.String(),
		DisplayInfo: DisplayInfoResponse{
			Name:      s.DisplayInfo.Name,
			AccountID: s.DisplayInfo.AccountID,
		},
		AuthArtifact:     s.AuthArtifact,
		LastTransitionAt: s.LastTransitionAt,
	}
}

func toListResponse(summaries []models.Summary) *ListResponse {
	out := &ListResponse{Sessions: make([]*SessionResponse, 0, len(summaries)), Total: len(summaries)}
	for _, s := range summaries {
		out.Sessions = append(out.Sessions, toSessionResponse(s))
	}
	return out
}
