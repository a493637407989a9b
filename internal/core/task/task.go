// Package task contains the task value submitted to a service and its lifecycle.
// This is part of the Functional Core - all functions are pure with no I/O.
package task

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/google/uuid"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrEmptyID           = errors.New("empty id not allowed")
	ErrInvalidProject    = errors.New("invalid project name")
	ErrInvalidBranch     = errors.New("invalid branch name")
	ErrInvalidCommit     = errors.New("invalid commit")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnknownState      = errors.New("unknown state")
)

// =============================================================================
// State
// =============================================================================

// State is the lifecycle state of a task.
type State int

const (
	Ready State = iota
	Running
	Canceled
	Failed
	Done
	Interrupted
)

var stateNames = []string{"Ready", "Running", "Canceled", "Failed", "Done", "Interrupted"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	switch s {
	case Canceled, Failed, Done, Interrupted:
		return true
	default:
		return false
	}
}

// ParseState parses the String form of a state.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownState, name)
}

// =============================================================================
// Task
// =============================================================================

var (
	shaRegex  = regexp.MustCompile(`^[0-9a-f]+$`)
	nameRegex = regexp.MustCompile(`^[0-9a-zA-Z\-%_]+$`)
)

// Task is one run of a service for a project commit.
type Task struct {
	ID           uuid.UUID         `json:"id"`
	Service      string            `json:"service"`
	Project      string            `json:"project"`
	Branch       string            `json:"branch"`
	Commit       string            `json:"commit"`
	Args         meta.Params       `json:"args"`
	Environments map[string]string `json:"environments,omitempty"`
	Files        map[string]string `json:"files,omitempty"`
	State        State             `json:"state"`
	ExitCode     int               `json:"exit_code"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Logs         string            `json:"logs,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// New creates a Ready task with a fresh ID.
func New(service, project, branch, commit string, args meta.Params) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		Service:   service,
		Project:   project,
		Branch:    branch,
		Commit:    commit,
		Args:      args,
		State:     Ready,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the identifying fields of the task.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyID
	}
	if !nameRegex.MatchString(t.Project) {
		return fmt.Errorf("%w: project name must be url escaped, without any strange letter : %s", ErrInvalidProject, t.Project)
	}
	if !nameRegex.MatchString(t.Branch) {
		return fmt.Errorf("%w: branch name must be url escaped, without any strange letter : %s", ErrInvalidBranch, t.Branch)
	}
	if !shaRegex.MatchString(t.Commit) {
		return fmt.Errorf("%w: bad commit format : %s", ErrInvalidCommit, t.Commit)
	}
	return nil
}

// Materialize stores a copy of the validated runtime environment on the task.
func (t *Task) Materialize(cfg *meta.MaterializedConfig) {
	if cfg == nil {
		return
	}
	c := cfg.Clone()
	t.Environments = c.Environments
	t.Files = c.Files
}

// Config returns the runtime environment recorded on the task.
func (t *Task) Config() *meta.MaterializedConfig {
	return &meta.MaterializedConfig{
		Environments: t.Environments,
		Files:        t.Files,
	}
}

// =============================================================================
// State Transitions
// =============================================================================

// Start moves a Ready task to Running.
func (t *Task) Start() error {
	if t.State != Ready {
		return t.transitionError(Running)
	}
	t.setState(Running)
	return nil
}

// Finish records the exit code of a Running task. A non-zero code fails it.
func (t *Task) Finish(exitCode int) error {
	if t.State != Running {
		return t.transitionError(Done)
	}
	t.ExitCode = exitCode
	if exitCode != 0 {
		t.ErrorMessage = fmt.Sprintf("exited with code %d", exitCode)
		t.setState(Failed)
		return nil
	}
	t.setState(Done)
	return nil
}

// Fail marks a Ready or Running task as Failed.
func (t *Task) Fail(message string) error {
	if t.State != Ready && t.State != Running {
		return t.transitionError(Failed)
	}
	t.ErrorMessage = message
	t.setState(Failed)
	return nil
}

// Cancel marks a Ready or Running task as Canceled.
func (t *Task) Cancel() error {
	if t.State != Ready && t.State != Running {
		return t.transitionError(Canceled)
	}
	t.setState(Canceled)
	return nil
}

// Interrupt marks a Running task as Interrupted, e.g. on shutdown.
func (t *Task) Interrupt() error {
	if t.State != Running {
		return t.transitionError(Interrupted)
	}
	t.setState(Interrupted)
	return nil
}

func (t *Task) setState(s State) {
	t.State = s
	t.UpdatedAt = time.Now().UTC()
}

func (t *Task) transitionError(to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, to)
}
