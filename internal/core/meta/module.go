package meta

import "maps"

// =============================================================================
// Validator
// =============================================================================

// Validator is implemented by every service meta module.
type Validator interface {
	// Name returns the service name the module is registered under.
	Name() string

	// Validate checks params and returns the runtime environment for one
	// instance. It either returns a complete config or a *ValidationError.
	Validate(params Params) (*MaterializedConfig, error)
}

// =============================================================================
// Module
// =============================================================================

// Module is a Validator assembled from field rules and file templates.
// A Module is immutable once built and safe for concurrent use.
type Module struct {
	name  string
	rules []FieldRule
	files map[string]string
}

var _ Validator = (*Module)(nil)

// NewModule creates a module. Rules are applied in order; files maps a
// relative path to a template rendered with SubstituteVariables.
func NewModule(name string, rules []FieldRule, files map[string]string) *Module {
	return &Module{
		name:  name,
		rules: append([]FieldRule(nil), rules...),
		files: maps.Clone(files),
	}
}

// Name implements Validator.
func (m *Module) Name() string {
	return m.name
}

// Fields returns the declared field names in evaluation order.
func (m *Module) Fields() []string {
	fields := make([]string, len(m.rules))
	for i, r := range m.rules {
		fields[i] = r.Field
	}
	return fields
}

// Validate implements Validator. The first failing rule wins.
func (m *Module) Validate(params Params) (*MaterializedConfig, error) {
	envs := make(map[string]string, len(m.rules))
	for _, rule := range m.rules {
		value, err := rule.Apply(params)
		if err != nil {
			return nil, err
		}
		envs[rule.Field] = value
	}

	return &MaterializedConfig{
		Environments: envs,
		Files:        RenderFiles(m.files, envs),
	}, nil
}
