package internaltypes

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrNotReady     = errors.New("not ready")
)

// ValidationError rejects a malformed request before any job exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type RateLimitedError struct {
	SecondsRemaining int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("Rate limit exceeded. Please wait %d seconds before scraping again.", e.SecondsRemaining)
}

// AdapterError is an unrecoverable failure escaping a platform adapter. The
// message is the adapter's own so it can be shown to the caller verbatim.
type AdapterError struct {
	Platform string
	Err      error
}

func (e *AdapterError) Error() string { return e.Err.Error() }

func (e *AdapterError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
