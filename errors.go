package main

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes handlers are allowed to map to
// specific status codes. Anything else is a generic datastore failure and is
// logged without surfacing internals.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrUnauthenticated = errors.New("missing or invalid credentials")
	ErrForbidden       = errors.New("not allowed to modify this resource")
	ErrContention      = errors.New("too many concurrent updates, retry")
	ErrInvalidCursor   = errors.New("invalid pagination cursor")
	ErrAlreadyReviewed = errors.New("resource already reviewed")
)

// ValidationError carries field-level messages, safe to return verbatim.
type ValidationError struct {
	Fields map[string][]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}
