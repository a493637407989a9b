package catalog

import (
	"testing"

	"github.com/artpar/servicemeta/internal/core/compose"
	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Valid(t *testing.T) {
	c, err := Load("testdata/valid", meta.Builtin(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"demo", "greeter"}, c.Names())
	assert.Equal(t, []string{"demo", "greeter"}, c.Registry().Names())

	t.Run("builtin validator", func(t *testing.T) {
		v, err := c.Registry().Lookup("demo")
		require.NoError(t, err)

		cfg, err := v.Validate(meta.Params{"HELLO": "World"})
		require.NoError(t, err)
		assert.Equal(t, "Hello World", cfg.Files["hello.txt"])
	})

	t.Run("script validator", func(t *testing.T) {
		v, err := c.Registry().Lookup("greeter")
		require.NoError(t, err)

		cfg, err := v.Validate(meta.Params{"GREETING": "good morning"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"GREETING": "good morning"}, cfg.Environments)
		assert.Equal(t, map[string]string{"out/greeting.txt": "good morning"}, cfg.Files)

		_, err = v.Validate(meta.Params{})
		assert.ErrorIs(t, err, meta.ErrMissingField)
		assert.EqualError(t, err, "GREETING argument is mandatory")
	})

	t.Run("definitions", func(t *testing.T) {
		def, err := c.Definition("demo")
		require.NoError(t, err)
		main, ok := def.MainService()
		require.True(t, ok)
		assert.Equal(t, "busybox:1.36", main.Image)

		def, err = c.Definition("greeter")
		require.NoError(t, err)
		main, ok = def.MainService()
		require.True(t, ok)
		require.Len(t, main.Volumes, 1)
		assert.Equal(t, compose.VolumeMountTypeBind, main.Volumes[0].Type)

		_, err = c.Definition("waiter")
		assert.ErrorIs(t, err, meta.ErrUnknownService)
	})
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		dir     string
		builtin *meta.Registry
		wantErr error
	}{
		{"volume outside the service", "testdata/bad-volume", meta.Builtin(), compose.ErrVolumeNotRelative},
		{"no validator", "testdata/no-validator", meta.Builtin(), ErrNoValidator},
		{"no builtins", "testdata/valid", nil, ErrNoValidator},
		{"missing compose file", "testdata/no-definition", meta.Builtin(), ErrNoDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.dir, tt.builtin, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingDir(t *testing.T) {
	_, err := Load("testdata/does-not-exist", meta.Builtin(), nil)
	assert.Error(t, err)
}
