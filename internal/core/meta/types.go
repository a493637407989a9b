package meta

import "maps"

// =============================================================================
// Params
// =============================================================================

// Params maps a field name to the raw value supplied by the caller.
// Values are strings, except where a module requires an integer.
type Params map[string]any

// =============================================================================
// MaterializedConfig
// =============================================================================

// MaterializedConfig is the validated output of a meta module.
type MaterializedConfig struct {
	// Environments maps an environment variable name to its value.
	Environments map[string]string `json:"environments,omitempty"`

	// Files maps a path, relative to the instance working directory, to its content.
	Files map[string]string `json:"files,omitempty"`
}

// Clone returns a deep copy of the config.
func (c *MaterializedConfig) Clone() *MaterializedConfig {
	if c == nil {
		return nil
	}
	return &MaterializedConfig{
		Environments: maps.Clone(c.Environments),
		Files:        maps.Clone(c.Files),
	}
}
