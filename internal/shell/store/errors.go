// Package store persists tasks and looks them up by commit.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no task matches a lookup.
	ErrNotFound = errors.New("task not found")

	// ErrDuplicateID is returned when a task id is stored twice.
	ErrDuplicateID = errors.New("task id already exists")

	// ErrConnectionFailed is returned when the database cannot be opened.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when the schema cannot be brought up to date.
	ErrMigrationFailed = errors.New("database migration failed")

	// ErrInvalidData is returned when a task column cannot be encoded or decoded.
	ErrInvalidData = errors.New("invalid task data")
)

// StoreError records the store operation that failed and the task it was
// about. Ref is a task id or a service/project/branch/commit path.
type StoreError struct {
	Op      string
	Ref     string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Ref, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError.
func NewStoreError(op, ref, message string, err error) *StoreError {
	return &StoreError{Op: op, Ref: ref, Message: message, Err: err}
}
