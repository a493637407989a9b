// Package script runs service meta modules written in JavaScript.
//
// A service folder may ship a meta.js defining validate(params). The source is
// compiled once; every call runs in its own goja runtime, since a runtime is
// not safe for concurrent use.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/dop251/goja"
)

// EntryPoint is the function a meta.js must define.
const EntryPoint = "validate"

// DefaultTimeout bounds a single validate call.
const DefaultTimeout = 2 * time.Second

var (
	ErrNoEntryPoint  = errors.New("meta.js does not define validate(params)")
	ErrInvalidResult = errors.New("validate returned an invalid result")
	ErrTimeout       = errors.New("validate timed out")
	ErrScript        = errors.New("meta.js raised an error")
)

// nativeErrors are the error types the JavaScript engine raises itself.
var nativeErrors = map[string]bool{
	"TypeError":      true,
	"ReferenceError": true,
	"SyntaxError":    true,
	"RangeError":     true,
	"EvalError":      true,
	"URIError":       true,
}

var (
	mandatoryRegex = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*) argument is mandatory$`)
	leadingIdent   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)`)
)

// =============================================================================
// Validator
// =============================================================================

// Validator is a meta.Validator backed by a compiled meta.js.
type Validator struct {
	name    string
	program *goja.Program
	timeout time.Duration
	logger  *slog.Logger
}

var _ meta.Validator = (*Validator)(nil)

// Option configures a Validator.
type Option func(*Validator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithLogger receives console.log output of the script.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// Compile compiles source and checks that it defines the entry point.
func Compile(name, source string, opts ...Option) (*Validator, error) {
	program, err := goja.Compile(name+"/meta.js", source, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s/meta.js: %w", name, err)
	}

	v := &Validator{
		name:    name,
		program: program,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}

	vm, stop, err := v.runtime()
	if err != nil {
		return nil, err
	}
	defer stop()
	if _, ok := goja.AssertFunction(vm.Get(EntryPoint)); !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoEntryPoint)
	}
	return v, nil
}

// Name implements meta.Validator.
func (v *Validator) Name() string {
	return v.name
}

// Validate implements meta.Validator. Values thrown by the script become
// *meta.ValidationError, except native errors such as TypeError which are
// reported as ErrScript. Loading the program and the call share one timeout.
func (v *Validator) Validate(params meta.Params) (*meta.MaterializedConfig, error) {
	vm, stop, err := v.runtime()
	if err != nil {
		return nil, err
	}
	defer stop()

	fn, ok := goja.AssertFunction(vm.Get(EntryPoint))
	if !ok {
		return nil, fmt.Errorf("%s: %w", v.name, ErrNoEntryPoint)
	}

	input := normalizeParams(params)
	res, err := fn(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		if isInterrupted(err) {
			return nil, fmt.Errorf("%s: %w", v.name, ErrTimeout)
		}
		var exception *goja.Exception
		if errors.As(err, &exception) {
			return nil, v.thrownToError(exception, params)
		}
		return nil, fmt.Errorf("%s: %w", v.name, err)
	}

	return toConfig(res)
}

// runtime returns a fresh runtime with the program loaded. The timeout starts
// before the program runs; stop must be called once the runtime is done.
func (v *Validator) runtime() (*goja.Runtime, func(), error) {
	vm := goja.New()
	timer := time.AfterFunc(v.timeout, func() {
		vm.Interrupt(ErrTimeout)
	})
	stop := func() { timer.Stop() }

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		v.logger.Debug("meta.js console", "service", v.name, "message", fmt.Sprint(args...))
		return goja.Undefined()
	})
	if err := vm.Set("console", console); err != nil {
		stop()
		return nil, nil, err
	}

	if _, err := vm.RunProgram(v.program); err != nil {
		stop()
		if isInterrupted(err) {
			return nil, nil, fmt.Errorf("load %s/meta.js: %w", v.name, ErrTimeout)
		}
		return nil, nil, fmt.Errorf("load %s/meta.js: %w", v.name, err)
	}
	return vm, stop, nil
}

func isInterrupted(err error) bool {
	var interrupted *goja.InterruptedError
	return errors.As(err, &interrupted)
}

// =============================================================================
// Conversions
// =============================================================================

// normalizeParams copies params so the script cannot mutate the caller's map,
// turning json.Number into a JS number.
func normalizeParams(params meta.Params) map[string]any {
	out := make(map[string]any, len(params))
	for k, val := range params {
		if n, ok := val.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				out[k] = i
				continue
			}
			if f, err := n.Float64(); err == nil {
				out[k] = f
				continue
			}
			out[k] = n.String()
			continue
		}
		out[k] = val
	}
	return out
}

// thrownToError maps a thrown value onto the validation error taxonomy.
// Native errors are bugs in the script, not rejected params.
func (v *Validator) thrownToError(exception *goja.Exception, params meta.Params) error {
	message := exception.Error()
	if val := exception.Value(); val != nil {
		if s, ok := val.Export().(string); ok {
			message = s
		} else if obj, ok := val.(*goja.Object); ok {
			if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
				message = m.String()
			}
			if name := obj.Get("name"); name != nil && nativeErrors[name.String()] {
				return fmt.Errorf("%s: %w: %s: %s", v.name, ErrScript, name.String(), message)
			}
		}
	}

	if m := mandatoryRegex.FindStringSubmatch(message); m != nil {
		return meta.NewMissingFieldError(m[1])
	}

	field := ""
	if m := leadingIdent.FindStringSubmatch(message); m != nil {
		field = m[1]
	}
	return meta.NewInvalidFormatError(field, params[field], message)
}

// toConfig converts the value returned by validate.
func toConfig(res goja.Value) (*meta.MaterializedConfig, error) {
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, ErrInvalidResult
	}
	obj, ok := res.Export().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidResult)
	}

	rawEnvs, hasEnvs := obj["environments"]
	rawFiles, hasFiles := obj["files"]
	if !hasEnvs && !hasFiles {
		// Early modules return the params themselves.
		envs, err := stringMap(obj)
		if err != nil {
			return nil, err
		}
		return &meta.MaterializedConfig{Environments: envs}, nil
	}

	cfg := &meta.MaterializedConfig{}
	if hasEnvs {
		m, ok := rawEnvs.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: environments must be an object", ErrInvalidResult)
		}
		envs, err := stringMap(m)
		if err != nil {
			return nil, err
		}
		cfg.Environments = envs
	}
	if hasFiles {
		m, ok := rawFiles.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: files must be an object", ErrInvalidResult)
		}
		files, err := stringMap(m)
		if err != nil {
			return nil, err
		}
		cfg.Files = files
	}
	return cfg, nil
}

func stringMap(m map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, val := range m {
		s, err := stringify(val)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidResult, k, err)
		}
		out[k] = s
	}
	return out, nil
}

func stringify(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", val)
	}
}
