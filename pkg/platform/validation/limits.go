package validation

import (
	"fmt"

	dErrors "chatpulse/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum accepted command request body (64 KB).
	MaxBodySize = 64 * 1024

	// MaxWebhookBodySize bounds gateway callbacks, which may carry message
	// content and a QR payload.
	MaxWebhookBodySize = 256 * 1024
)

// String element length limits
const (
	// MaxDisplayNameLength is the maximum length of a tenant display name.
	MaxDisplayNameLength = 200

	// MaxDestinationLength is the maximum length of a message destination
	// (phone number, chat handle or group id).
	MaxDestinationLength = 256

	// MaxContentLength is the maximum length of an outbound message body.
	MaxContentLength = 16 * 1024
)

// Slice element count limits
const (
	// MaxStateFilters is the maximum number of states in a list filter.
	MaxStateFilters = 7
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
