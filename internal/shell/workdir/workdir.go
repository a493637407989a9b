// Package workdir writes the files of a materialized config to disk.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/servicemeta/internal/core/meta"
)

const (
	// DirMode is the mode of created directories.
	DirMode os.FileMode = 0755

	// FileMode is the mode of written files.
	FileMode os.FileMode = 0644
)

var (
	// ErrPathEscape is returned for a file path leaving the task directory.
	ErrPathEscape = errors.New("file path escapes the working directory")

	// ErrEmptyID is returned when no task id is given.
	ErrEmptyID = errors.New("task id is required")

	// ErrIsDir is returned by Open for a directory.
	ErrIsDir = errors.New("path is a directory")
)

// Workdirs manages one working directory per task under a root.
type Workdirs struct {
	root string
}

// New creates the root directory if needed. The root is made absolute so it
// can be bind mounted.
func New(root string) (*Workdirs, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, DirMode); err != nil {
		return nil, fmt.Errorf("failed to create workdir root: %w", err)
	}
	return &Workdirs{root: abs}, nil
}

// Root returns the absolute root directory.
func (w *Workdirs) Root() string {
	return w.root
}

// Path returns the working directory of a task.
func (w *Workdirs) Path(taskID string) string {
	return filepath.Join(w.root, taskID)
}

// Write writes every file of cfg under the task directory and returns it.
// Paths are checked before anything is written.
func (w *Workdirs) Write(taskID string, cfg *meta.MaterializedConfig) (string, error) {
	if !validID(taskID) {
		return "", ErrEmptyID
	}
	dir := w.Path(taskID)

	var files map[string]string
	if cfg != nil {
		files = cfg.Files
	}

	targets := make(map[string]string, len(files))
	for name := range files {
		target, err := resolve(dir, name)
		if err != nil {
			return "", err
		}
		targets[name] = target
	}

	if err := os.MkdirAll(dir, DirMode); err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}

	for name, content := range files {
		target := targets[name]
		if err := os.MkdirAll(filepath.Dir(target), DirMode); err != nil {
			return "", fmt.Errorf("failed to create directory for %s: %w", name, err)
		}
		if err := os.WriteFile(target, []byte(content), FileMode); err != nil {
			return "", fmt.Errorf("failed to write file %s: %w", name, err)
		}
	}

	return dir, nil
}

// Remove deletes the working directory of a task.
func (w *Workdirs) Remove(taskID string) error {
	if taskID == "" {
		return ErrEmptyID
	}
	if err := os.RemoveAll(w.Path(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove working directory: %w", err)
	}
	return nil
}

// Open opens a file written in the working directory of a task. Directories
// and paths leaving the task directory are rejected.
func (w *Workdirs) Open(taskID, name string) (*os.File, os.FileInfo, error) {
	if !validID(taskID) {
		return nil, nil, ErrEmptyID
	}
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return nil, nil, ErrIsDir
	}
	target, err := resolve(w.Path(taskID), filepath.FromSlash(name))
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(target)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", name, ErrIsDir)
	}
	return f, info, nil
}

func validID(taskID string) bool {
	return taskID != "" && !strings.ContainsAny(taskID, `/\`) && taskID != "." && taskID != ".."
}

func resolve(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}
	target := filepath.Clean(filepath.Join(dir, name))
	if target == dir || !strings.HasPrefix(target, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}
	return target, nil
}

// Environ renders the environments of cfg as sorted KEY=VALUE pairs.
func Environ(cfg *meta.MaterializedConfig) []string {
	if cfg == nil {
		return nil
	}
	env := make([]string, 0, len(cfg.Environments))
	for k, v := range cfg.Environments {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
