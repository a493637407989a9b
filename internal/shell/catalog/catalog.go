// Package catalog loads the services directory.
//
// Each service lives in its own folder holding a docker-compose.yml and,
// optionally, a meta.js defining its validator. Folders without meta.js use
// the builtin validator of the same name.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/artpar/servicemeta/internal/core/compose"
	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/artpar/servicemeta/internal/shell/script"
)

const (
	// ComposeFile is the service definition file name.
	ComposeFile = "docker-compose.yml"

	// MetaFile is the validator script file name.
	MetaFile = "meta.js"
)

var (
	// ErrNoValidator is returned for a folder with neither meta.js nor builtin.
	ErrNoValidator = errors.New("no validator for service")

	// ErrNoDefinition is returned when a service has no docker-compose.yml.
	ErrNoDefinition = errors.New("service definition not found")
)

// Catalog holds the validators and definitions of every loaded service.
type Catalog struct {
	registry    *meta.Registry
	definitions map[string]*compose.Definition
}

// Load scans dir. Every subfolder is one service named after the folder.
// Scripts are compiled with opts.
func Load(dir string, builtin *meta.Registry, logger *slog.Logger, opts ...script.Option) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read services directory: %w", err)
	}

	c := &Catalog{
		registry:    meta.NewRegistry(),
		definitions: make(map[string]*compose.Definition),
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if err := c.loadService(filepath.Join(dir, name), name, builtin, logger, opts); err != nil {
			return nil, fmt.Errorf("service %s: %w", name, err)
		}
	}

	logger.Info("loaded services", "dir", dir, "count", c.registry.Len(), "services", c.registry.Names())
	return c, nil
}

func (c *Catalog) loadService(path, name string, builtin *meta.Registry, logger *slog.Logger, opts []script.Option) error {
	raw, err := os.ReadFile(filepath.Join(path, ComposeFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoDefinition
		}
		return err
	}

	def, err := compose.ParseServiceDefinition(string(raw))
	if err != nil {
		return err
	}

	validator, err := c.validatorFor(path, name, builtin, opts)
	if err != nil {
		return err
	}

	if err := c.registry.Register(validator); err != nil {
		return err
	}
	c.definitions[name] = def

	logger.Debug("loaded service", "service", name, "services", len(def.Services), "variables", def.Variables)
	return nil
}

func (c *Catalog) validatorFor(path, name string, builtin *meta.Registry, opts []script.Option) (meta.Validator, error) {
	source, err := os.ReadFile(filepath.Join(path, MetaFile))
	switch {
	case err == nil:
		return script.Compile(name, string(source), opts...)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	if builtin != nil {
		if v, err := builtin.Lookup(name); err == nil {
			return v, nil
		}
	}
	return nil, ErrNoValidator
}

// Registry returns the validators of the loaded services.
func (c *Catalog) Registry() *meta.Registry {
	return c.registry
}

// Definition returns the checked definition of a service.
func (c *Catalog) Definition(name string) (*compose.Definition, error) {
	def, ok := c.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", meta.ErrUnknownService, name)
	}
	return def, nil
}

// Names returns the loaded service names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.definitions))
	for name := range c.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
