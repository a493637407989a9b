// Package api provides the HTTP surface of servicemeta.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/artpar/servicemeta/internal/core/badge"
	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/artpar/servicemeta/internal/core/task"
	"github.com/artpar/servicemeta/internal/shell/dispatch"
	"github.com/artpar/servicemeta/internal/shell/store"
	"github.com/artpar/servicemeta/internal/shell/workdir"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Error codes.
const (
	CodeInvalidJSON    = "invalid_json"
	CodeMissingField   = "missing_field"
	CodeInvalidFormat  = "invalid_format"
	CodeInvalidTask    = "invalid_task"
	CodeUnknownService = "unknown_service"
	CodeNotFound       = "not_found"
	CodeInvalidPath    = "invalid_path"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal_error"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// Handler
// =============================================================================

// Dispatcher is the part of dispatch.Dispatcher the handlers use.
type Dispatcher interface {
	Services() []string
	Validate(service string, params meta.Params) (*meta.MaterializedConfig, error)
	Submit(ctx context.Context, req dispatch.SubmitRequest) (*task.Task, error)
}

// Config wires the handler.
type Config struct {
	Dispatcher Dispatcher
	Store      store.Store
	Metrics    http.Handler // nil disables /metrics

	// Workdirs serves task files under /volumes. Nil disables it.
	Workdirs *workdir.Workdirs

	// Ready checks the container runtime. Nil means always ready.
	Ready func(ctx context.Context) error

	Logger *slog.Logger
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	dispatcher Dispatcher
	store      store.Store
	metrics    http.Handler
	workdirs   *workdir.Workdirs
	ready      func(ctx context.Context) error
	logger     *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		dispatcher: cfg.Dispatcher,
		store:      cfg.Store,
		metrics:    cfg.Metrics,
		workdirs:   cfg.Workdirs,
		ready:      cfg.Ready,
		logger:     cfg.Logger,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		// Health endpoints
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		r.Get("/tasks", h.handleListTasks)

		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.handleListServices)
			r.Post("/{serviceID}/validate", h.handleValidate)
		})

		r.Route("/service/{serviceID}/{project}/{branch}", func(r chi.Router) {
			r.Get("/latest", h.handleGetLatest)
			r.Get("/latest/status", h.handleLatestBadge)
			r.Get("/latest/logs", h.handleLatestLogs)
			r.Get("/latest/volumes/*", h.handleLatestVolume)
			r.Post("/{commit}", h.handleSubmit)
			r.Get("/{commit}", h.handleGetCommit)
			r.Get("/{commit}/status", h.handleCommitBadge)
			r.Get("/{commit}/logs", h.handleCommitLogs)
			r.Get("/{commit}/volumes/*", h.handleCommitVolume)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}

	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			checks["docker"] = "failed"
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
			return
		}
		checks["docker"] = "ok"
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Service Handlers
// =============================================================================

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	services := h.dispatcher.Services()
	if services == nil {
		services = []string{}
	}
	h.writeJSON(w, http.StatusOK, ServicesResponse{Services: services})
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	params, ok := h.decodeParams(w, r)
	if !ok {
		return
	}

	cfg, err := h.dispatcher.Validate(chi.URLParam(r, "serviceID"), params)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// =============================================================================
// Task Handlers
// =============================================================================

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	params, ok := h.decodeParams(w, r)
	if !ok {
		return
	}

	t, err := h.dispatcher.Submit(r.Context(), dispatch.SubmitRequest{
		Service: chi.URLParam(r, "serviceID"),
		Project: chi.URLParam(r, "project"),
		Branch:  chi.URLParam(r, "branch"),
		Commit:  chi.URLParam(r, "commit"),
		Params:  params,
	})
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, taskToResponse(t))
}

func (h *Handler) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	t, err := h.lookupTask(r, false)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, taskToResponse(t))
}

func (h *Handler) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	t, err := h.lookupTask(r, true)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, taskToResponse(t))
}

func (h *Handler) handleCommitBadge(w http.ResponseWriter, r *http.Request) {
	h.writeBadge(w, r, false)
}

func (h *Handler) handleLatestBadge(w http.ResponseWriter, r *http.Request) {
	h.writeBadge(w, r, true)
}

func (h *Handler) writeBadge(w http.ResponseWriter, r *http.Request, latest bool) {
	service := chi.URLParam(r, "serviceID")

	t, err := h.lookupTask(r, latest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, badge.NotFound(service))
			return
		}
		h.writeDispatchError(w, err)
		return
	}

	b, err := badge.For(badge.KindStatus, service, t.State)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// =============================================================================
// Output Handlers
// =============================================================================

func (h *Handler) handleCommitLogs(w http.ResponseWriter, r *http.Request) {
	h.writeLogs(w, r, false)
}

func (h *Handler) handleLatestLogs(w http.ResponseWriter, r *http.Request) {
	h.writeLogs(w, r, true)
}

// writeLogs returns the container output recorded for the task as plain text.
func (h *Handler) writeLogs(w http.ResponseWriter, r *http.Request, latest bool) {
	t, err := h.lookupTask(r, latest)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, t.Logs); err != nil {
		h.logger.Error("failed to write logs", "task_id", t.ID, "error", err)
	}
}

func (h *Handler) handleCommitVolume(w http.ResponseWriter, r *http.Request) {
	h.serveVolume(w, r, false)
}

func (h *Handler) handleLatestVolume(w http.ResponseWriter, r *http.Request) {
	h.serveVolume(w, r, true)
}

// serveVolume serves a file from the working directory of the task. The
// directory only outlives a run when workdirs are kept.
func (h *Handler) serveVolume(w http.ResponseWriter, r *http.Request, latest bool) {
	if h.workdirs == nil {
		h.writeError(w, http.StatusNotFound, "volumes are not served", CodeNotFound)
		return
	}

	t, err := h.lookupTask(r, latest)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	name := chi.URLParam(r, "*")
	f, info, err := h.workdirs.Open(t.ID.String(), name)
	switch {
	case errors.Is(err, workdir.ErrPathEscape):
		h.writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidPath)
		return
	case errors.Is(err, os.ErrNotExist), errors.Is(err, workdir.ErrIsDir):
		h.writeError(w, http.StatusNotFound, "file not found", CodeNotFound)
		return
	case err != nil:
		h.writeDispatchError(w, err)
		return
	}
	defer f.Close()

	w.Header().Del("Content-Type")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *Handler) lookupTask(r *http.Request, latest bool) (*task.Task, error) {
	return h.store.GetByCommit(r.Context(),
		chi.URLParam(r, "serviceID"),
		chi.URLParam(r, "project"),
		chi.URLParam(r, "branch"),
		chi.URLParam(r, "commit"),
		latest,
	)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Service: q.Get("service"),
		Project: q.Get("project"),
		Branch:  q.Get("branch"),
	}
	if s := q.Get("state"); s != "" {
		state, err := task.ParseState(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidTask)
			return
		}
		opts.State = &state
	}
	if v := q.Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}
	opts = opts.Normalize()

	tasks, err := h.store.ListTasks(r.Context(), opts)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	resp := ListTasksResponse{Tasks: make([]TaskResponse, 0, len(tasks)), Limit: opts.Limit, Offset: opts.Offset}
	for i := range tasks {
		resp.Tasks = append(resp.Tasks, taskToResponse(&tasks[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

// decodeParams reads a JSON object body. An empty body is an empty object.
// Numbers are kept as json.Number.
func (h *Handler) decodeParams(w http.ResponseWriter, r *http.Request) (meta.Params, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var params meta.Params
	if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", CodeInvalidJSON)
		return nil, false
	}
	if params == nil {
		params = meta.Params{}
	}
	return params, true
}

func (h *Handler) writeDispatchError(w http.ResponseWriter, err error) {
	var verr *meta.ValidationError
	switch {
	case errors.As(err, &verr):
		code := CodeInvalidFormat
		if verr.Kind == meta.MissingField {
			code = CodeMissingField
		}
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Code: code, Field: verr.Field})
	case errors.Is(err, meta.ErrUnknownService):
		h.writeError(w, http.StatusNotFound, err.Error(), CodeUnknownService)
	case errors.Is(err, task.ErrInvalidProject),
		errors.Is(err, task.ErrInvalidBranch),
		errors.Is(err, task.ErrInvalidCommit):
		h.writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidTask)
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "task not found", CodeNotFound)
	case errors.Is(err, dispatch.ErrQueueFull), errors.Is(err, dispatch.ErrShuttingDown):
		h.writeError(w, http.StatusServiceUnavailable, err.Error(), CodeUnavailable)
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error", CodeInternal)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
