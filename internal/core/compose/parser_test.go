package compose

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const demoSpec = `
services:
  hello:
    image: ${IMAGE:-busybox}
    command: ["sh", "-c", "cat /workdir/hello.txt"]
    environment:
      HELLO: ${HELLO}
    volumes:
      - ./cache:/cache
`

const waiterSpec = `
services:
  waiter:
    image: busybox
    command: ["sh", "-c", "sleep $$WAIT"]
  sidecar:
    image: alpine:3
    ports:
      - "8080:80"
`

// =============================================================================
// ParseServiceDefinition Tests
// =============================================================================

func TestParseServiceDefinition_Demo(t *testing.T) {
	def, err := ParseServiceDefinition(demoSpec)
	require.NoError(t, err)
	require.Len(t, def.Services, 1)

	svc := def.Services[0]
	assert.Equal(t, "hello", svc.Name)
	assert.Equal(t, "busybox", svc.Image)
	assert.Equal(t, []string{"sh", "-c", "cat /workdir/hello.txt"}, svc.Command)
	require.Len(t, svc.Volumes, 1)
	assert.Equal(t, VolumeMountTypeBind, svc.Volumes[0].Type)
	assert.Equal(t, "./cache", svc.Volumes[0].Source)
	assert.Equal(t, "/cache", svc.Volumes[0].Target)
	assert.Equal(t, []string{"IMAGE", "HELLO"}, def.Variables)
}

func TestParseServiceDefinition_SortedServicesAndMain(t *testing.T) {
	def, err := ParseServiceDefinition(waiterSpec)
	require.NoError(t, err)
	require.Len(t, def.Services, 2)
	assert.Equal(t, "sidecar", def.Services[0].Name)
	assert.Equal(t, "waiter", def.Services[1].Name)

	main, ok := def.MainService()
	require.True(t, ok)
	assert.Equal(t, "sidecar", main.Name)
	require.Len(t, main.Ports, 1)
	assert.Equal(t, uint32(80), main.Ports[0].Target)
	assert.Equal(t, uint32(8080), main.Ports[0].Published)
}

func TestParseServiceDefinition_Empty(t *testing.T) {
	_, err := ParseServiceDefinition("   \n")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseServiceDefinition_InvalidYAML(t *testing.T) {
	_, err := ParseServiceDefinition("services: [unclosed")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParseServiceDefinition_NoServices(t *testing.T) {
	_, err := ParseServiceDefinition("volumes:\n  data:\n")
	assert.ErrorIs(t, err, ErrNoServices)
}

func TestParseServiceDefinition_NoImage(t *testing.T) {
	_, err := ParseServiceDefinition("services:\n  app:\n    command: [\"true\"]\n")
	assert.ErrorIs(t, err, ErrServiceNoImage)
}

func TestParseServiceDefinition_ImageWithoutDefault(t *testing.T) {
	_, err := ParseServiceDefinition("services:\n  app:\n    image: ${IMAGE}\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageNoDefault)

	var pErr *ParseError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "services.app.image", pErr.Field)
}

func TestParseServiceDefinition_Volumes(t *testing.T) {
	tests := []struct {
		name    string
		volume  string
		wantErr error
		wantMsg string
	}{
		{
			name:    "parent directory",
			volume:  "./../cache:/cache",
			wantErr: ErrVolumeParentPath,
			wantMsg: "services.hello.volumes[0]: found a path trying to access a parent directory ./../cache in service hello",
		},
		{
			name:    "absolute path",
			volume:  "/cache:/cache",
			wantErr: ErrVolumeNotRelative,
			wantMsg: "services.hello.volumes[0]: found a none relative mount /cache in service hello",
		},
		{
			name:    "named volume",
			volume:  "cache:/cache",
			wantErr: ErrVolumeNotBind,
		},
		{
			name:    "too deep",
			volume:  "./a/b/c/d/e/f/g/h/i/j/k/l/m/n/o:/deep",
			wantErr: ErrVolumeTooDeep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := fmt.Sprintf("services:\n  hello:\n    image: busybox\n    volumes:\n      - %s\nvolumes:\n  cache:\n", tt.volume)
			_, err := ParseServiceDefinition(spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.EqualError(t, err, tt.wantMsg)
			}
		})
	}
}

func TestMainService_Empty(t *testing.T) {
	var def *Definition
	_, ok := def.MainService()
	assert.False(t, ok)
}

// =============================================================================
// ValidateImage Tests
// =============================================================================

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name  string
		image string
		err   error
	}{
		{name: "No variable", image: "busybox", err: nil},
		{name: "Valid variable", image: "${IMAGE:-busybox}", err: nil},
		{name: "Valid double variable", image: "${IMAGE:-busybox}-${VERSION:-1}", err: nil},
		{name: "Invalid variable", image: "${IMAGE}", err: fmt.Errorf("missing a default variable in image name definition ${IMAGE}")},
		{name: "Invalid double variable", image: "${IMAGE:-busybox}-${VERSION}", err: fmt.Errorf("missing a default variable in image name definition ${IMAGE:-busybox}-${VERSION}")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.err, ValidateImage(tc.image))
		})
	}
}

// =============================================================================
// ExtractVariables Tests
// =============================================================================

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables("a: ${A}\nb: ${B:-x}\nc: ${A}\n")
	assert.Equal(t, []string{"A", "B"}, vars)
	assert.Empty(t, ExtractVariables("plain: text"))
}
