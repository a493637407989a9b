// Package compose contains pure functions for checking service definitions
// written as Docker Compose files.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput = errors.New("compose spec is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Compose structure errors
	ErrNoServices = errors.New("compose spec must define at least one service")

	// Image errors
	ErrServiceNoImage = errors.New("service must have an image")
	ErrImageNoDefault = errors.New("image variable without default")

	// Volume errors
	ErrVolumeNotBind     = errors.New("volume is not a bind mount")
	ErrVolumeNotRelative = errors.New("volume source is not relative")
	ErrVolumeParentPath  = errors.New("volume source accesses a parent directory")
	ErrVolumeTooDeep     = errors.New("volume source is too deep")

	// Port errors
	ErrServiceInvalidPort = errors.New("invalid port configuration")
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string // e.g., "services.hello.volumes[0]"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
