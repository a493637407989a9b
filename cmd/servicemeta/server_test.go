package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, servicesDir string) *Config {
	t.Helper()
	dataDir := t.TempDir()
	return &Config{
		Server:   ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: 5 * time.Second},
		Database: DatabaseConfig{DSN: filepath.Join(dataDir, "test.db")},
		Data:     DataConfig{Dir: dataDir},
		Docker:   DockerConfig{Enabled: false},
		Services: ServicesConfig{Dir: servicesDir, ScriptTimeout: time.Second},
		Workers:  WorkersConfig{Count: 1, QueueSize: 4},
		Launch:   LaunchConfig{Timeout: time.Minute},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServer_BuiltinOnly(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing"))

	server, err := NewServer(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"services":["demo","demo-letters","demo-word","waiter"]}`, rec.Body.String())
}

func TestNewServer_ServicesDir(t *testing.T) {
	dir := t.TempDir()
	svc := filepath.Join(dir, "shout")
	require.NoError(t, os.MkdirAll(svc, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(svc, "docker-compose.yml"), []byte("services:\n  shout:\n    image: busybox:1.36\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(svc, "meta.js"), []byte(`
function validate(params) {
    if (!("WORD" in params)) { throw "WORD argument is mandatory"; }
    return {environments: {WORD: String(params.WORD).toUpperCase()}};
}
`), 0644))

	server, err := NewServer(testConfig(t, dir), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/services/shout/validate", strings.NewReader(`{"WORD": "hey"}`))
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"environments":{"WORD":"HEY"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))
	assert.JSONEq(t, `{"services":["shout"]}`, rec.Body.String())
}

func TestNewServer_BadServicesDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "orphan"), 0755))

	_, err := NewServer(testConfig(t, dir), discardLogger())
	var sErr *ServerError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, ExitServicesError, sErr.ExitCode)
}

func TestServerError(t *testing.T) {
	err := &ServerError{Op: "Start", Err: io.EOF, ExitCode: ExitHTTPServerError}
	assert.Equal(t, "Start: EOF", err.Error())
	assert.ErrorIs(t, err, io.EOF)
}
