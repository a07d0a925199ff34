package errors

import (
	"errors"
)

// Common error types for the storefront auth service
var (
	// Configuration errors
	ErrNotConfigured = errors.New("backend environment variables are not configured")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrRateLimited        = errors.New("too many requests")
	ErrUnauthorized       = errors.New("unauthorized")

	// Transport errors
	ErrNetwork = errors.New("network error")
	ErrTimeout = errors.New("timed out")

	// Session errors
	ErrNoSession = errors.New("no session")

	// Data errors
	ErrNoRows = errors.New("no rows returned")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnknown        = errors.New("unknown error")
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
