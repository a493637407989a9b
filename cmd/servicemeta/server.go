package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/artpar/servicemeta/internal/shell/api"
	"github.com/artpar/servicemeta/internal/shell/catalog"
	"github.com/artpar/servicemeta/internal/shell/dispatch"
	"github.com/artpar/servicemeta/internal/shell/docker"
	"github.com/artpar/servicemeta/internal/shell/script"
	"github.com/artpar/servicemeta/internal/shell/store"
	"github.com/artpar/servicemeta/internal/shell/workdir"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
	ExitServicesError   = 5
	ExitValidationError = 6
)

// =============================================================================
// Server
// =============================================================================

// Server represents the servicemeta application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	docker     docker.Client
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Load services
	registry, definitions, err := loadServices(cfg, logger)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitServicesError}
	}

	// Prepare task working directories
	workdirs, err := workdir.New(cfg.Data.TasksDir())
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
	}

	// Connect to database
	if err := os.MkdirAll(cfg.Data.Dir, workdir.DirMode); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	deps := dispatch.Deps{
		Registry: registry,
		Store:    s,
		Workdirs: workdirs,
		Metrics:  dispatch.NewMetrics("servicemeta"),
		Logger:   logger,
	}

	// Connect to Docker
	var d docker.Client
	var ready func(context.Context) error
	if cfg.Docker.Enabled {
		dc, err := docker.NewDockerClient(cfg.Docker.Host)
		if err != nil {
			s.Close()
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDockerError}
		}

		// Verify Docker connection
		if err := dc.Ping(context.Background()); err != nil {
			s.Close()
			dc.Close()
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDockerError}
		}

		launcher := docker.NewLauncher(dc, logger)
		d = dc
		ready = launcher.Check
		if definitions != nil {
			deps.Runner = launcher
			deps.Definitions = definitions
		}
	} else {
		logger.Warn("docker disabled, tasks are materialized but not run")
	}

	dispatcher := dispatch.New(deps, dispatch.Config{
		Workers:       cfg.Workers.Count,
		QueueSize:     cfg.Workers.QueueSize,
		LaunchTimeout: cfg.Launch.Timeout,
		KeepWorkdirs:  cfg.Launch.KeepWorkdirs,
	})

	handler := api.NewHandler(api.Config{
		Dispatcher: dispatcher,
		Store:      s,
		Metrics:    deps.Metrics.Handler(),
		Workdirs:   workdirs,
		Ready:      ready,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		docker:     d,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// loadServices returns the registry to validate with and, when a services
// directory exists, the definitions to run tasks from.
func loadServices(cfg *Config, logger *slog.Logger) (*meta.Registry, dispatch.Definitions, error) {
	builtin := meta.Builtin()

	info, err := os.Stat(cfg.Services.Dir)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("services directory not found, using builtin validators only",
			"dir", cfg.Services.Dir,
			"services", builtin.Names(),
		)
		return builtin, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("services path %s is not a directory", cfg.Services.Dir)
	}

	c, err := catalog.Load(cfg.Services.Dir, builtin, logger,
		script.WithTimeout(cfg.Services.ScriptTimeout),
		script.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	return c.Registry(), c, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the workers and the HTTP server, then blocks until a signal,
// a server error or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.dispatcher.Start()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		_ = s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Drain task workers
	if err := s.dispatcher.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("dispatcher shutdown error", "error", err)
	}

	// Close Docker client
	if s.docker != nil {
		if err := s.docker.Close(); err != nil {
			s.logger.Error("Docker client close error", "error", err)
		}
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
