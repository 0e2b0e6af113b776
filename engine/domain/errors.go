package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrInvalidConfig marks a bad component configuration. Fatal at startup.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrDimensionMismatch is returned when a vector's dimensionality does
	// not match the collection it is written to or searched against.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrMetricMismatch is returned when an existing collection was created
	// with a different similarity metric than the one configured.
	ErrMetricMismatch = errors.New("similarity metric mismatch")
	// ErrEmptyQuery is returned for blank query text.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrMissingDirectory is returned when the document directory does not exist.
	ErrMissingDirectory = errors.New("document directory does not exist")
	// ErrGeneration marks a terminal failure of the underlying text generator.
	ErrGeneration = errors.New("answer generation failed")
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
