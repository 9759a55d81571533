package domain

import "errors"

// Error taxonomy surfaced to callers. Handlers map these to HTTP status
// codes; nothing in the service layer is silently swallowed.
var (
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflict")
	ErrInvalidState     = errors.New("invalid state")
	ErrNotFound         = errors.New("not found")
)
