package docker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/artpar/servicemeta/internal/core/compose"
	"github.com/docker/docker/pkg/stdcopy"
)

// Container labels.
const (
	LabelManaged = "servicemeta.managed"
	LabelService = "servicemeta.service"
	LabelTask    = "servicemeta.task"
)

// WorkdirTarget is where the task working directory is mounted.
const WorkdirTarget = "/workdir"

// DefaultLogTail is the number of log lines kept from a finished container.
const DefaultLogTail = "100"

// =============================================================================
// Launch Spec
// =============================================================================

// LaunchSpec describes one task run.
type LaunchSpec struct {
	Service string
	TaskID  string
	Image   string
	Command []string
	Env     []string
	Workdir string // Absolute host path of the task working directory
	Ports   []PortBinding
	Volumes []VolumeMount

	// KeepContainer leaves the container in place after it exits.
	KeepContainer bool
}

// LaunchResult is the outcome of a finished run.
type LaunchResult struct {
	ContainerID string
	ExitCode    int
	Logs        string
}

// NewLaunchSpec builds the spec of a task from the main service of its
// definition. Relative bind mounts are resolved against the task working
// directory and env entries override the service environment.
func NewLaunchSpec(service, taskID string, svc compose.Service, env []string, workdir string) LaunchSpec {
	spec := LaunchSpec{
		Service: service,
		TaskID:  taskID,
		Image:   svc.Image,
		Command: svc.Command,
		Workdir: workdir,
	}

	spec.Env = mergeEnv(svc.Environment, env)

	for _, p := range svc.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{
			Source:   filepath.Join(workdir, v.Source),
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	return spec
}

func mergeEnv(base map[string]string, env []string) []string {
	seen := make(map[string]bool, len(env))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		seen[key] = true
	}

	merged := make([]string, 0, len(base)+len(env))
	for k, v := range base {
		if !seen[k] {
			merged = append(merged, k+"="+v)
		}
	}
	merged = append(merged, env...)
	sort.Strings(merged)
	return merged
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// ContainerName returns the container name of a task.
func ContainerName(service, taskID string) string {
	name := unsafeNameChars.ReplaceAllString(service, "_")
	name = strings.Trim(name, "_.-")
	return name + "_" + taskID
}

// =============================================================================
// Launcher
// =============================================================================

// Launcher runs task containers to completion.
type Launcher struct {
	docker Client
	logger *slog.Logger
}

// NewLauncher creates a new launcher.
func NewLauncher(docker Client, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{docker: docker, logger: logger}
}

// Launch pulls the image if needed, then creates, starts and waits for the
// task container. A non-zero exit code is not an error.
func (l *Launcher) Launch(ctx context.Context, spec LaunchSpec) (*LaunchResult, error) {
	if spec.Image == "" || spec.TaskID == "" || spec.Service == "" {
		return nil, NewDockerError("Launch", "", "", "service, task id and image are required", ErrInvalidSpec)
	}
	if spec.Workdir != "" && !filepath.IsAbs(spec.Workdir) {
		return nil, NewDockerError("Launch", "", "", "workdir must be absolute", ErrInvalidSpec)
	}

	logger := l.logger.With("service", spec.Service, "task_id", spec.TaskID)

	exists, err := l.docker.ImageExists(ctx, spec.Image)
	if err != nil {
		logger.Warn("failed to inspect image", "image", spec.Image, "error", err)
	}
	if !exists {
		logger.Info("pulling image", "image", spec.Image)
		if err := l.docker.PullImage(ctx, spec.Image); err != nil {
			return nil, err
		}
	}

	name := ContainerName(spec.Service, spec.TaskID)
	containerSpec := ContainerSpec{
		Name:    name,
		Image:   spec.Image,
		Command: spec.Command,
		Env:     spec.Env,
		Labels: map[string]string{
			LabelManaged: "true",
			LabelService: spec.Service,
			LabelTask:    spec.TaskID,
		},
		Ports:   spec.Ports,
		Volumes: spec.Volumes,
	}
	if spec.Workdir != "" {
		containerSpec.Volumes = append(containerSpec.Volumes, VolumeMount{
			Source: spec.Workdir,
			Target: WorkdirTarget,
		})
	}

	containerID, err := l.docker.CreateContainer(ctx, containerSpec)
	if err != nil {
		return nil, err
	}
	logger.Debug("created container", "container_id", containerID, "name", name)

	result := &LaunchResult{ContainerID: containerID, ExitCode: -1}
	defer func() {
		if spec.KeepContainer {
			return
		}
		// The run context may already be done.
		if err := l.docker.RemoveContainer(context.WithoutCancel(ctx), containerID, RemoveOptions{Force: true}); err != nil {
			logger.Warn("failed to remove container", "container_id", containerID, "error", err)
		}
	}()

	if err := l.docker.StartContainer(ctx, containerID); err != nil {
		return result, err
	}
	logger.Info("started container", "container_id", containerID)

	exitCode, err := l.docker.WaitContainer(ctx, containerID)
	result.ExitCode = exitCode
	result.Logs = l.collectLogs(context.WithoutCancel(ctx), containerID)
	if err != nil {
		return result, err
	}

	logger.Info("container exited", "container_id", containerID, "exit_code", exitCode)

	return result, nil
}

func (l *Launcher) collectLogs(ctx context.Context, containerID string) string {
	reader, err := l.docker.ContainerLogs(ctx, containerID, LogOptions{Tail: DefaultLogTail})
	if err != nil {
		l.logger.Debug("failed to read logs", "container_id", containerID, "error", err)
		return ""
	}
	defer reader.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, reader); err != nil {
		l.logger.Debug("failed to demultiplex logs", "container_id", containerID, "error", err)
	}
	return out.String()
}

// Check pings the daemon.
func (l *Launcher) Check(ctx context.Context) error {
	if err := l.docker.Ping(ctx); err != nil {
		return fmt.Errorf("docker unavailable: %w", err)
	}
	return nil
}
