package service

import (
	"errors"

	"chatpulse/internal/sentinel"
	dErrors "chatpulse/pkg/domain-errors"
)

// wrapLookupErr translates registry lookups into domain errors.
func wrapLookupErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tenant")
}

// wrapBackendErr classifies a failure of the messaging backend during a
// command that needs it to be reachable.
func wrapBackendErr(err error, msg string) error {
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return &dErrors.Error{Code: dErrors.CodeExternalUnavailable, Message: msg, Err: err}
}
