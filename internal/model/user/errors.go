package user

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField marks a structurally malformed payload: a key is absent
	// or carries the wrong JSON type.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidField marks a payload that is well formed but holds a value
	// the domain rejects (non-positive ID, blank name, impossible date).
	ErrInvalidField = errors.New("invalid field value")
)

// ValidationError reports which field of a payload was rejected and why.
//
// Use errors.Is with ErrMissingField or ErrInvalidField to branch on the
// category.
type ValidationError struct {
	Field  string
	Reason string

	kind error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

func missing(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required", kind: ErrMissingField}
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, kind: ErrInvalidField}
}
