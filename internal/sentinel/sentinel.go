package sentinel

import "errors"

// Sentinel dependency errors. Stores, backends and the bus return these
// (optionally wrapped) so the session service translates them into domain
// errors exactly once.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("unavailable")
	ErrClosed        = errors.New("closed")
	ErrRejected      = errors.New("rejected")
)
