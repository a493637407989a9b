package meta

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// demo Tests
// =============================================================================

func TestDemo_Success(t *testing.T) {
	cfg, err := NewDemo().Validate(Params{"HELLO": "World"})
	require.NoError(t, err)

	want := &MaterializedConfig{
		Environments: map[string]string{"HELLO": "World"},
		Files:        map[string]string{"hello.txt": "Hello World"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}

func TestDemo_MissingField(t *testing.T) {
	for _, v := range []Validator{NewLettersDemo(), NewWordDemo(), NewDemo()} {
		t.Run(v.Name(), func(t *testing.T) {
			cfg, err := v.Validate(Params{})
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, errors.Is(err, ErrMissingField))
			assert.EqualError(t, err, "HELLO argument is mandatory")

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, MissingField, vErr.Kind)
			assert.Equal(t, "HELLO", vErr.Field)
		})
	}
}

func TestDemo_Digits(t *testing.T) {
	_, err := NewLettersDemo().Validate(Params{"HELLO": "123"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFormat))
	assert.EqualError(t, err, "HELLO is only letters")

	cfg, err := NewWordDemo().Validate(Params{"HELLO": "123"})
	require.NoError(t, err)
	assert.Equal(t, "123", cfg.Environments["HELLO"])
	assert.Empty(t, cfg.Files)

	cfg, err = NewDemo().Validate(Params{"HELLO": "123"})
	require.NoError(t, err)
	assert.Equal(t, "Hello 123", cfg.Files["hello.txt"])
}

func TestDemo_SpaceRejectedByAllVariants(t *testing.T) {
	for _, v := range []Validator{NewLettersDemo(), NewWordDemo(), NewDemo()} {
		t.Run(v.Name(), func(t *testing.T) {
			_, err := v.Validate(Params{"HELLO": "a b"})
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, InvalidFormat, kind)
			assert.Contains(t, err.Error(), "HELLO")
		})
	}
}

func TestDemo_MessageEchoesValue(t *testing.T) {
	_, err := NewDemo().Validate(Params{"HELLO": "Alice Dupont"})
	require.Error(t, err)
	assert.EqualError(t, err, "HELLO is only letters : [Alice Dupont]")
}

func TestDemo_WordCharactersIgnoreCase(t *testing.T) {
	cfg, err := NewDemo().Validate(Params{"HELLO": "MiXeD_case_42"})
	require.NoError(t, err)
	assert.Equal(t, "MiXeD_case_42", cfg.Environments["HELLO"])
}

func TestDemo_EmptyStringIsPresentButMalformed(t *testing.T) {
	_, err := NewDemo().Validate(Params{"HELLO": ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFormat), "empty value is present, not missing")
}

func TestDemo_NonStringRejected(t *testing.T) {
	_, err := NewDemo().Validate(Params{"HELLO": 42})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFormat))
	assert.EqualError(t, err, "HELLO is only letters : [42]")
}

func TestDemo_ValueNotTrimmed(t *testing.T) {
	_, err := NewDemo().Validate(Params{"HELLO": " World"})
	assert.Error(t, err)
}

// =============================================================================
// waiter Tests
// =============================================================================

func TestWaiter_Success(t *testing.T) {
	cfg, err := NewWaiter().Validate(Params{"WAIT": 5})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"WAIT": "5"}, cfg.Environments)
	assert.Empty(t, cfg.Files)
}

func TestWaiter_StringRejected(t *testing.T) {
	_, err := NewWaiter().Validate(Params{"WAIT": "5"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFormat))
	assert.EqualError(t, err, "WAIT is only numbers : [5]")

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "WAIT", vErr.Field)
	assert.Equal(t, "5", vErr.Value)
}

func TestWaiter_MissingField(t *testing.T) {
	_, err := NewWaiter().Validate(Params{"HELLO": "World"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.EqualError(t, err, "WAIT argument is mandatory")
}

func TestWaiter_ZeroIsPresent(t *testing.T) {
	cfg, err := NewWaiter().Validate(Params{"WAIT": 0})
	require.NoError(t, err)
	assert.Equal(t, "0", cfg.Environments["WAIT"])
}

func TestWaiter_NumberKinds(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    string
		wantErr bool
	}{
		{name: "int", value: 5, want: "5"},
		{name: "int64", value: int64(-3), want: "-3"},
		{name: "uint8", value: uint8(7), want: "7"},
		{name: "whole float", value: 5.0, want: "5"},
		{name: "json integer", value: json.Number("12"), want: "12"},
		{name: "json whole float", value: json.Number("12.0"), want: "12"},
		{name: "json big integer", value: json.Number("123456789012345678901234567890"), want: "123456789012345678901234567890"},
		{name: "json negative integer", value: json.Number("-42"), want: "-42"},
		{name: "json exponent", value: json.Number("1e2"), want: "100"},
		{name: "large whole float", value: 1e20, want: "100000000000000000000"},
		{name: "json out of range", value: json.Number("1e400"), wantErr: true},
		{name: "fraction", value: 5.5, wantErr: true},
		{name: "json fraction", value: json.Number("1.25"), wantErr: true},
		{name: "numeric string", value: "5", wantErr: true},
		{name: "bool", value: true, wantErr: true},
		{name: "nil", value: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewWaiter().Validate(Params{"WAIT": tt.value})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Environments["WAIT"])
		})
	}
}

// =============================================================================
// Contract Properties
// =============================================================================

func TestModule_UnknownFieldsIgnored(t *testing.T) {
	params := Params{"HELLO": "World", "EXTRA": "x y z", "WAIT": "nope"}
	cfg, err := NewDemo().Validate(params)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"HELLO": "World"}, cfg.Environments)
	assert.NotContains(t, cfg.Environments, "EXTRA")
}

func TestModule_Idempotent(t *testing.T) {
	params := Params{"HELLO": "World"}
	first, err := NewDemo().Validate(params)
	require.NoError(t, err)
	second, err := NewDemo().Validate(params)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second call differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, Params{"HELLO": "World"}, params, "input must not be mutated")
}

func TestModule_FirstFailureWins(t *testing.T) {
	m := NewModule("pair", []FieldRule{
		{Field: "A", Check: MatchPattern(LettersOnly)},
		{Field: "B", Check: IsInteger},
	}, nil)

	_, err := m.Validate(Params{"A": "1"})
	require.Error(t, err)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "A", vErr.Field)
	assert.Equal(t, InvalidFormat, vErr.Kind)
	assert.Equal(t, "A has an invalid format : [1]", vErr.Message)
}

func TestModule_Fields(t *testing.T) {
	assert.Equal(t, []string{"HELLO"}, NewDemo().Fields())
	assert.Equal(t, []string{"WAIT"}, NewWaiter().Fields())
}

func TestModule_TemplatesNotShared(t *testing.T) {
	files := map[string]string{"a.txt": "${A}"}
	m := NewModule("copy", []FieldRule{{Field: "A", Check: MatchPattern(LettersOnly)}}, files)
	files["a.txt"] = "changed"

	cfg, err := m.Validate(Params{"A": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", cfg.Files["a.txt"])
}

func TestMaterializedConfig_Clone(t *testing.T) {
	cfg := &MaterializedConfig{Environments: map[string]string{"K": "v"}}
	clone := cfg.Clone()
	clone.Environments["K"] = "changed"
	assert.Equal(t, "v", cfg.Environments["K"])

	var empty *MaterializedConfig
	assert.Nil(t, empty.Clone())
}

func TestMaterializedConfig_JSON(t *testing.T) {
	raw, err := json.Marshal(&MaterializedConfig{Environments: map[string]string{"WAIT": "5"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"environments":{"WAIT":"5"}}`, string(raw))
}
