package api

import (
	"time"

	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/artpar/servicemeta/internal/core/task"
)

// =============================================================================
// Response Types
// =============================================================================

// TaskResponse is the response for task operations.
type TaskResponse struct {
	ID           string            `json:"id"`
	Service      string            `json:"service"`
	Project      string            `json:"project"`
	Branch       string            `json:"branch"`
	Commit       string            `json:"commit"`
	Args         meta.Params       `json:"args"`
	Environments map[string]string `json:"environments,omitempty"`
	Files        map[string]string `json:"files,omitempty"`
	State        string            `json:"state"`
	ExitCode     int               `json:"exit_code"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func taskToResponse(t *task.Task) TaskResponse {
	args := t.Args
	if args == nil {
		args = meta.Params{}
	}
	return TaskResponse{
		ID:           t.ID.String(),
		Service:      t.Service,
		Project:      t.Project,
		Branch:       t.Branch,
		Commit:       t.Commit,
		Args:         args,
		Environments: t.Environments,
		Files:        t.Files,
		State:        t.State.String(),
		ExitCode:     t.ExitCode,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// ListTasksResponse is the response for listing tasks.
type ListTasksResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ServicesResponse lists the registered services.
type ServicesResponse struct {
	Services []string `json:"services"`
}

// ErrorResponse is the error response format. Field is set for parameter
// validation failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
