// Package dispatch validates service parameters and runs the resulting tasks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/servicemeta/internal/core/compose"
	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/artpar/servicemeta/internal/core/task"
	"github.com/artpar/servicemeta/internal/shell/docker"
	"github.com/artpar/servicemeta/internal/shell/store"
	"github.com/artpar/servicemeta/internal/shell/workdir"
)

var (
	// ErrQueueFull is returned when no worker slot is left for a task.
	ErrQueueFull = errors.New("task queue is full")

	// ErrShuttingDown is returned for submissions after Shutdown.
	ErrShuttingDown = errors.New("dispatcher is shutting down")
)

// =============================================================================
// Dependencies
// =============================================================================

// Definitions resolves the service definition of a validator.
type Definitions interface {
	Definition(name string) (*compose.Definition, error)
}

// Runner launches a task container and waits for it.
type Runner interface {
	Launch(ctx context.Context, spec docker.LaunchSpec) (*docker.LaunchResult, error)
}

// Config configures the dispatcher.
type Config struct {
	Workers       int
	QueueSize     int
	LaunchTimeout time.Duration

	// KeepWorkdirs leaves task directories on disk after a run.
	KeepWorkdirs bool
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     64,
		LaunchTimeout: 10 * time.Minute,
	}
}

// Deps groups the collaborators of a dispatcher. Definitions and Runner may
// be nil, in which case submitted tasks are stored and materialized but not run.
type Deps struct {
	Registry    *meta.Registry
	Definitions Definitions
	Store       store.Store
	Workdirs    *workdir.Workdirs
	Runner      Runner
	Metrics     *Metrics
	Logger      *slog.Logger
}

// =============================================================================
// Dispatcher
// =============================================================================

// Dispatcher is the single entry point from requests to validators and runs.
type Dispatcher struct {
	registry    *meta.Registry
	definitions Definitions
	store       store.Store
	workdirs    *workdir.Workdirs
	runner      Runner
	metrics     *Metrics
	config      Config
	logger      *slog.Logger

	queue  chan *task.Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

// New creates a dispatcher. Workers are started by Start.
func New(deps Deps, config Config) *Dispatcher {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.LaunchTimeout <= 0 {
		config.LaunchTimeout = defaults.LaunchTimeout
	}
	if deps.Registry == nil {
		deps.Registry = meta.NewRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics("")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry:    deps.Registry,
		definitions: deps.Definitions,
		store:       deps.Store,
		workdirs:    deps.Workdirs,
		runner:      deps.Runner,
		metrics:     deps.Metrics,
		config:      config,
		logger:      deps.Logger.With("component", "dispatcher"),
		queue:       make(chan *task.Task, config.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("dispatcher started", "workers", d.config.Workers, "queue_size", d.config.QueueSize)
}

// Services returns the names of the registered services, sorted.
func (d *Dispatcher) Services() []string {
	return d.registry.Names()
}

// Metrics returns the dispatcher collectors.
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// Store returns the task store.
func (d *Dispatcher) Store() store.Store {
	return d.store
}

// Validate runs the validator of a service. It has no side effect besides
// the validation counter.
func (d *Dispatcher) Validate(service string, params meta.Params) (*meta.MaterializedConfig, error) {
	v, err := d.registry.Lookup(service)
	if err != nil {
		return nil, err
	}

	cfg, err := v.Validate(params)
	d.metrics.RecordValidation(service, err)
	if err != nil {
		d.logger.Debug("validation rejected", "service", service, "error", err)
		return nil, err
	}
	return cfg, nil
}

// SubmitRequest identifies the commit a service runs for.
type SubmitRequest struct {
	Service string
	Project string
	Branch  string
	Commit  string
	Params  meta.Params
}

// Submit validates the parameters, stores a new task, writes its working
// directory and queues its run. The returned task is Ready, or Failed when
// it could not be queued.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*task.Task, error) {
	if d.store == nil || d.workdirs == nil {
		return nil, errors.New("dispatcher has no store or workdirs")
	}

	cfg, err := d.Validate(req.Service, req.Params)
	if err != nil {
		return nil, err
	}

	t := task.New(req.Service, req.Project, req.Branch, req.Commit, req.Params)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.Materialize(cfg)

	if err := d.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to store task: %w", err)
	}

	logger := d.logger.With("service", t.Service, "task_id", t.ID)

	if _, err := d.workdirs.Write(t.ID.String(), cfg); err != nil {
		d.failTask(ctx, t, err.Error())
		d.discardWorkdir(logger, t)
		return t, fmt.Errorf("failed to write task files: %w", err)
	}

	if d.runner == nil || d.definitions == nil {
		logger.Info("task materialized", "project", t.Project, "branch", t.Branch, "commit", t.Commit)
		return t, nil
	}

	if err := d.enqueue(t); err != nil {
		d.failTask(ctx, t, err.Error())
		d.discardWorkdir(logger, t)
		return t, err
	}

	logger.Info("task queued", "project", t.Project, "branch", t.Branch, "commit", t.Commit)
	return t, nil
}

func (d *Dispatcher) enqueue(t *task.Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrShuttingDown
	}

	queued := *t
	select {
	case d.queue <- &queued:
		d.metrics.queueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// discardWorkdir removes the directory of a task that will not run.
func (d *Dispatcher) discardWorkdir(logger *slog.Logger, t *task.Task) {
	if d.config.KeepWorkdirs {
		return
	}
	if err := d.workdirs.Remove(t.ID.String()); err != nil {
		logger.Warn("failed to remove workdir", "error", err)
	}
}

func (d *Dispatcher) failTask(ctx context.Context, t *task.Task, message string) {
	if err := t.Fail(message); err != nil {
		d.logger.Error("failed to fail task", "task_id", t.ID, "error", err)
		return
	}
	if err := d.store.UpdateTask(context.WithoutCancel(ctx), t); err != nil {
		d.logger.Error("failed to update task", "task_id", t.ID, "error", err)
	}
	d.metrics.RecordRun(t.Service, t.State)
}

// =============================================================================
// Workers
// =============================================================================

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()
	logger := d.logger.With("worker", n)

	for t := range d.queue {
		d.metrics.queueDepth.Dec()
		d.run(logger, t)
	}
}

func (d *Dispatcher) run(logger *slog.Logger, t *task.Task) {
	logger = logger.With("service", t.Service, "task_id", t.ID)
	id := t.ID.String()

	// Store writes outlive the run context.
	storeCtx := context.WithoutCancel(d.ctx)

	defer d.discardWorkdir(logger, t)

	if d.ctx.Err() != nil {
		if err := t.Cancel(); err == nil {
			d.save(storeCtx, logger, t)
		}
		return
	}

	if err := t.Start(); err != nil {
		logger.Error("failed to start task", "error", err)
		return
	}
	d.save(storeCtx, logger, t)

	def, err := d.definitions.Definition(t.Service)
	if err != nil {
		d.finish(storeCtx, logger, t, t.Fail(err.Error()))
		return
	}
	svc, ok := def.MainService()
	if !ok {
		d.finish(storeCtx, logger, t, t.Fail("service definition has no service"))
		return
	}

	spec := docker.NewLaunchSpec(t.Service, id, svc, workdir.Environ(t.Config()), d.workdirs.Path(id))

	ctx, cancel := context.WithTimeout(d.ctx, d.config.LaunchTimeout)
	defer cancel()

	started := time.Now()
	result, err := d.runner.Launch(ctx, spec)
	if result != nil {
		t.Logs = result.Logs
	}
	switch {
	case err != nil && ctx.Err() != nil:
		t.ErrorMessage = err.Error()
		d.finish(storeCtx, logger, t, t.Interrupt())
	case err != nil:
		d.finish(storeCtx, logger, t, t.Fail(err.Error()))
	default:
		d.finish(storeCtx, logger, t, t.Finish(result.ExitCode))
	}

	logger.Info("task finished", "state", t.State.String(), "exit_code", t.ExitCode, "duration", time.Since(started))
}

func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, t *task.Task, transitionErr error) {
	if transitionErr != nil {
		logger.Error("invalid task transition", "error", transitionErr)
		return
	}
	d.save(ctx, logger, t)
	d.metrics.RecordRun(t.Service, t.State)
}

func (d *Dispatcher) save(ctx context.Context, logger *slog.Logger, t *task.Task) {
	if err := d.store.UpdateTask(ctx, t); err != nil {
		logger.Error("failed to update task", "state", t.State.String(), "error", err)
	}
}

// Shutdown stops accepting tasks and waits for queued ones. When ctx ends
// first, running launches are interrupted and remaining tasks canceled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		d.cancel()
		for t := range d.queue {
			d.metrics.queueDepth.Dec()
			d.run(d.logger, t)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		d.logger.Warn("dispatcher stopped before the queue drained")
		return ctx.Err()
	}
}
