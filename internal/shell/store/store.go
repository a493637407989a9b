package store

import (
	"context"

	"github.com/artpar/servicemeta/internal/core/task"
	"github.com/google/uuid"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for tasks.
type Store interface {
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error)
	UpdateTask(ctx context.Context, t *task.Task) error

	// GetByCommit returns the most recent task of a commit. With latest set
	// the commit is ignored and the most recent task of the branch is returned.
	GetByCommit(ctx context.Context, service, project, branch, commit string, latest bool) (*task.Task, error)

	ListTasks(ctx context.Context, opts ListOptions) ([]task.Task, error)

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
// Empty filters match everything.
type ListOptions struct {
	Service string
	Project string
	Branch  string
	State   *task.State

	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
