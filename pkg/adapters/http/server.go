package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/runner"
)

// Engine is the part of chainflow.Engine the server drives.
type Engine interface {
	Definitions() []string
	Start(ctx context.Context, name string, vars map[string]any) (*domain.Snapshot, error)
	Resume(ctx context.Context, runID string, vars map[string]any) (*domain.Snapshot, error)
	Inspect(ctx context.Context, runID string) (*domain.Snapshot, error)
	Runs(ctx context.Context) ([]*domain.Snapshot, error)
	Delete(ctx context.Context, runID string) error
}

// RunRequest is the body of start and resume requests.
type RunRequest struct {
	Vars map[string]any `json:"vars"`
}

// RunSummary is one entry of GET /runs.
type RunSummary struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Status    domain.Status `json:"status"`
	Waiting   []string      `json:"waiting,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Server exposes an Engine over HTTP.
type Server struct {
	engine   Engine
	streams  *StreamManager
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *httpMetrics
	router   *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry sets the Prometheus registry for HTTP metrics and /metrics.
// Defaults to a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// NewServer builds the router for engine.
func NewServer(engine Engine, opts ...Option) (*Server, error) {
	s := &Server{
		engine:  engine,
		streams: NewStreamManager(),
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.streams.logger = s.logger
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	m, err := newHTTPMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.metrics = m

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metrics.middleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	s.routes()
	return s, nil
}

// NewHandler is NewServer for callers that only need the http.Handler.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	s, err := NewServer(engine, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/info", s.handleInfo)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router.Get("/chains", s.handleListChains)
	s.router.Post("/chains/{name}/runs", s.handleStart)

	s.router.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Delete("/{id}", s.handleDeleteRun)
		r.Post("/{id}/resume", s.handleResume)
		r.Get("/{id}/events", s.handleEvents)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Streams exposes the SSE fan-out.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "chainflow-http",
		"version": strings.TrimSpace(chainflow.Version),
	})
}

func (s *Server) handleListChains(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Definitions())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	vars, ok := s.decodeVars(w, r)
	if !ok {
		return
	}
	snap, err := s.engine.Start(r.Context(), name, vars)
	if err != nil {
		s.writeEngineError(w, "start", err)
		return
	}
	s.broadcast(nil, snap)
	s.writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	vars, ok := s.decodeVars(w, r)
	if !ok {
		return
	}
	before, err := s.engine.Inspect(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "resume", err)
		return
	}
	snap, err := s.engine.Resume(r.Context(), id, vars)
	if err != nil {
		s.writeEngineError(w, "resume", err)
		return
	}
	s.broadcast(before, snap)
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Inspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, "inspect", err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.Runs(r.Context())
	if err != nil {
		s.writeEngineError(w, "list", err)
		return
	}
	status := r.URL.Query().Get("status")
	out := make([]RunSummary, 0, len(runs))
	for _, snap := range runs {
		if status != "" && string(snap.Status) != status {
			continue
		}
		out = append(out, RunSummary{
			ID:        snap.ID,
			Name:      snap.Name,
			Status:    snap.Status,
			Waiting:   domain.ParameterNames(snap.WaitInputParameters),
			UpdatedAt: snap.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeVars reads a RunRequest and sanitizes its string values.
// An empty body means no vars.
func (s *Server) decodeVars(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.logger.Warn("invalid request body", "err", err)
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return nil, false
		}
	}
	for k, v := range body.Vars {
		str, ok := v.(string)
		if !ok {
			continue
		}
		clean, err := runner.SanitizeInput(str)
		if err != nil {
			s.logger.Warn("input rejected", "key", k, "err", err, "size", len(str))
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid value for %q: %v", k, err))
			return nil, false
		}
		body.Vars[k] = clean
	}
	return body.Vars, true
}

func (s *Server) broadcast(before, after *domain.Snapshot) {
	diff := domain.Diff(before, after)
	if diff == nil {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		s.logger.Error("encode diff", "err", err)
		return
	}
	s.streams.Broadcast(after.ID, string(data))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, chainflow.ErrChainNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotResumable), errors.Is(err, domain.ErrSnapshotMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidDefinition), errors.Is(err, domain.ErrUnknownAgent):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	s.writeError(w, code, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
