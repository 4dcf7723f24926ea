// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across client and server layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization that could not be recovered.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates local input validation failed before any network call.
	ErrValidation = errors.New("validation")

	// ErrTransport indicates the request could not complete (dial, TLS, timeout, read).
	ErrTransport = errors.New("transport")

	// ErrStorage indicates persisted token state could not be read or written.
	ErrStorage = errors.New("storage")

	// ErrNoToken indicates no token has been saved yet.
	ErrNoToken = errors.New("no token")

	// ErrNoMatch indicates no detail row matched the requested contract/item.
	ErrNoMatch = errors.New("no matching row")

	// ErrSessionChanged indicates a response arrived for a session that was since signed out or replaced.
	ErrSessionChanged = errors.New("session changed")
)

// RemoteError is a well-formed server response that reports a business failure.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: status %d", e.Status)
	}
	return fmt.Sprintf("remote: status %d: %s", e.Status, e.Message)
}

// Validation wraps ErrValidation with a field-level reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
