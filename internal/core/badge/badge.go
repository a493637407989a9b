// Package badge builds the [subject|status] badges shown for task runs.
// This is part of the Functional Core - all functions are pure with no I/O.
package badge

import (
	"errors"
	"fmt"

	"github.com/artpar/servicemeta/internal/core/task"
)

// ErrUnknownKind is returned for a badge kind that is not defined.
var ErrUnknownKind = errors.New("unknown badge kind")

// Kind names a badge family.
type Kind string

// KindStatus renders the state of a task.
const KindStatus Kind = "status"

// Badge is a subject/status pair with the color of the status half.
type Badge struct {
	Subject string `json:"subject"`
	Status  string `json:"status"`
	Color   string `json:"color"`
}

// =============================================================================
// Colors
// =============================================================================

// DefaultColor is used for states without a dedicated color.
const DefaultColor = "#527284"

var stateColors = map[task.State]string{
	task.Ready:    "#2832C2", // lapis
	task.Canceled: "#900603", // ruby
	task.Running:  "#DD571C", // fire
	task.Failed:   "#900603", // ruby
	task.Done:     "#4ec820",
}

// ColorFor returns the color of a state.
func ColorFor(state task.State) string {
	if c, ok := stateColors[state]; ok {
		return c
	}
	return DefaultColor
}

// =============================================================================
// Builders
// =============================================================================

// For returns the badge of the given kind for a service task state.
func For(kind Kind, service string, state task.State) (Badge, error) {
	switch kind {
	case KindStatus:
		return Badge{
			Subject: fmt.Sprintf("status : %s", service),
			Status:  state.String(),
			Color:   ColorFor(state),
		}, nil
	default:
		return Badge{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// NotFound returns the badge shown when no task matches.
func NotFound(service string) Badge {
	return Badge{
		Subject: service,
		Status:  "not found",
		Color:   DefaultColor,
	}
}
