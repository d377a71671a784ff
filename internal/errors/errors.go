package errors

import (
	"errors"
	"fmt"
)

// Common error types for the platform client
var (
	// Credential errors
	ErrCredentialMissing = errors.New("no access token available")
	ErrSessionExpired    = errors.New("session expired, please sign in again")

	// Upstream errors
	ErrUpstreamRejected = errors.New("request rejected by server")

	// OAuth callback errors
	ErrProtocolMalformed = errors.New("authentication response is missing required fields")
)

// RateLimitError is returned when a call exhausts its retry budget against a
// rate-limited endpoint. Limit and Remaining are taken from the last response's
// X-RateLimit-* headers so the message can be shown to the end user as-is.
type RateLimitError struct {
	Limit     string
	Remaining string
	Attempts  int
}

func (e *RateLimitError) Error() string {
	limit := e.Limit
	if limit == "" {
		limit = "?"
	}
	remaining := e.Remaining
	if remaining == "" {
		remaining = "0"
	}
	return fmt.Sprintf("too many requests after %d attempts, please wait before trying again (%s of %s requests remaining)", e.Attempts, remaining, limit)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
