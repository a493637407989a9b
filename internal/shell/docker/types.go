// Package docker launches the container of a validated task.
package docker

import (
	"context"
	"io"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name       string
	Image      string
	Command    []string
	Env        []string // KEY=VALUE, already sorted
	Labels     map[string]string
	Ports      []PortBinding
	Volumes    []VolumeMount
	WorkingDir string
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// VolumeMount defines a bind mount.
type VolumeMount struct {
	Source   string // Absolute host path
	Target   string // Container path
	ReadOnly bool
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions configures container removal.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// LogOptions configures log retrieval.
type LogOptions struct {
	Tail       string
	Timestamps bool
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the Docker operations a launch needs.
type Client interface {
	// Containers
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	WaitContainer(ctx context.Context, containerID string) (exitCode int, err error)
	ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error)
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error

	// Images
	PullImage(ctx context.Context, image string) error
	ImageExists(ctx context.Context, image string) (bool, error)

	// Daemon
	Ping(ctx context.Context) error
	Close() error
}
