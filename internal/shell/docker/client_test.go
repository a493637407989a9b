package docker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func skipIfNoDocker(t *testing.T) Client {
	t.Helper()
	cli, err := NewDockerClient("")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	if err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

const testImage = "busybox:1.36"

// =============================================================================
// Integration Tests
// =============================================================================

func TestDockerClient_ImageExists_Missing(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	exists, err := cli.ImageExists(context.Background(), "servicemeta-test/does-not-exist:never")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDockerClient_StartMissingContainer(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	err := cli.StartContainer(context.Background(), "servicemeta-test-missing")
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestLauncher_RunsContainer(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("Hello World"), 0644))

	result, err := NewLauncher(cli, nil).Launch(ctx, LaunchSpec{
		Service: "servicemeta-test",
		TaskID:  uuid.NewString(),
		Image:   testImage,
		Command: []string{"sh", "-c", "cat /workdir/hello.txt; exit 2"},
		Workdir: dir,
	})
	if err != nil && strings.Contains(err.Error(), "pull") {
		t.Skip("image not pullable:", err)
	}
	require.NoError(t, err)

	assert.Equal(t, 2, result.ExitCode)
	assert.Contains(t, result.Logs, "Hello World")
}
