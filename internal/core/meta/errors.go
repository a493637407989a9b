package meta

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrMissingField is wrapped by every MissingField ValidationError.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidFormat is wrapped by every InvalidFormat ValidationError.
	ErrInvalidFormat = errors.New("invalid format")

	// Registry errors
	ErrUnknownService   = errors.New("unknown service")
	ErrDuplicateService = errors.New("service already registered")
	ErrEmptyServiceName = errors.New("service name is required")
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	MissingField  ErrorKind = "MissingField"
	InvalidFormat ErrorKind = "InvalidFormat"
)

// ValidationError reports the first field that failed validation.
// Message is the text surfaced to the caller verbatim.
type ValidationError struct {
	Kind    ErrorKind
	Field   string
	Value   any // nil for MissingField
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	switch e.Kind {
	case MissingField:
		return ErrMissingField
	case InvalidFormat:
		return ErrInvalidFormat
	default:
		return nil
	}
}

// NewMissingFieldError creates the error returned when field is absent.
func NewMissingFieldError(field string) *ValidationError {
	return &ValidationError{
		Kind:    MissingField,
		Field:   field,
		Message: fmt.Sprintf("%s argument is mandatory", field),
	}
}

// NewInvalidFormatError creates the error returned when field holds a malformed value.
func NewInvalidFormatError(field string, value any, message string) *ValidationError {
	return &ValidationError{
		Kind:    InvalidFormat,
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// KindOf returns the kind of a validation error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Kind, true
	}
	return "", false
}
