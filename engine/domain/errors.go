package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors shared by the engines and their collaborators.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrDataUnavailable = errors.New("data unavailable")
	ErrUnknownAllele   = errors.New("unknown allele")
	ErrLocusMismatch   = errors.New("locus mismatch")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// LookupError reports a missing record. It unwraps to ErrNotFound unless a
// different sentinel is supplied.
type LookupError struct {
	Kind    string
	ID      uuid.UUID
	Wrapped error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Wrapped)
}

func (e *LookupError) Unwrap() error { return e.Wrapped }

// NotFound builds a LookupError for an absent record of the given kind.
func NotFound(kind string, id uuid.UUID) *LookupError {
	return &LookupError{Kind: kind, ID: id, Wrapped: ErrNotFound}
}
