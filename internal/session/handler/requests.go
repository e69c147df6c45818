package handler

import (
	"strings"

	"chatpulse/internal/session/models"
	dErrors "chatpulse/pkg/domain-errors"
	"chatpulse/pkg/platform/validation"
)

// HTTP request DTOs. They are converted to model values before reaching
// the service.

type DisplayInfoRequest struct {
	Name string `json:"name" validate:"max=200"`
}

func (d DisplayInfoRequest) toModel() models.DisplayInfo {
	return models.DisplayInfo{Name: d.Name}
}

type CreateSessionRequest struct {
	TenantID    string             `json:"tenantId" validate:"required,tenantid,max=128"`
	DisplayInfo DisplayInfoRequest `json:"displayInfo"`
}

func (r *CreateSessionRequest) Normalize() {
	if r == nil {
		return
	}
	r.TenantID = strings.TrimSpace(r.TenantID)
	r.DisplayInfo.Name = strings.TrimSpace(r.DisplayInfo.Name)
}

func (r *CreateSessionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

type SendRequest struct {
	Destination string `json:"destination" validate:"required,notblank,max=256"`
	Content     string `json:"content" validate:"required,max=16384"`
}

func (r *SendRequest) Normalize() {
	if r == nil {
		return
	}
	r.Destination = strings.TrimSpace(r.Destination)
}

// Validate checks sizes before shape so oversized input fails fast.
func (r *SendRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckStringLength("destination", r.Destination, validation.MaxDestinationLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("content", r.Content, validation.MaxContentLength); err != nil {
		return err
	}
	return validation.Validate(r)
}
