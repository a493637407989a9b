// Package meta defines the service meta module contract.
//
// A meta module validates caller-supplied parameters for one named service and
// turns them into the runtime environment needed to launch an instance of it:
// environment variables and generated files. All functions are pure (no I/O,
// no side effects) and comply with ADR-002 "Values as Boundaries".
//
// # Contract
//
//   - Validator: Name and Validate(Params) (*MaterializedConfig, error)
//   - FieldRule: presence check by key, then a format predicate
//   - ValidationError: typed failure with a Kind (MissingField, InvalidFormat)
//   - Registry: service name to Validator lookup
//
// # Usage
//
// The dispatcher resolves a module by name and validates the request:
//
//	v, err := registry.Lookup("demo")
//	if err != nil {
//	    // 404
//	}
//	cfg, err := v.Validate(params)
//	if kind, ok := meta.KindOf(err); ok {
//	    // 400 with kind and err.Error()
//	}
package meta
