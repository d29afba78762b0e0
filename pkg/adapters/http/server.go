// Package http exposes an arbor application over REST: command listing
// and execution with JSON node trees, persisted run records, per-run
// live emission events via SSE, and a programmatically built OpenAPI
// document.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// Server serves one App. Construct with NewServer and mount Handler on
// any net/http server.
type Server struct {
	app     *arbor.App
	logger  *slog.Logger
	metrics prometheus.Gatherer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics exposes the gatherer on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = g
	}
}

// NewServer creates a Server for app.
func NewServer(app *arbor.App, opts ...Option) *Server {
	s := &Server{app: app, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi router for the full API surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors)

	r.Get("/health", s.health)
	r.Get("/openapi.json", s.openAPI)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/app", s.appInfo)
		r.Get("/commands", s.listCommands)
		r.Post("/commands/{name}/run", s.runCommand)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/runs/{id}/events", s.runEvents)
	})
	return r
}

// cors allows embedding web UIs served from another origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type appInfo struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Backend     string `json:"backend"`
}

func (s *Server) appInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, appInfo{
		Name:        s.app.Name(),
		Title:       s.app.Title(),
		Description: s.app.Description(),
		Backend:     s.app.Backend().Name(),
	})
}

func (s *Server) listCommands(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.Commands())
}

// runRequest is the POST body for command execution.
type runRequest struct {
	Args    domain.Args `json:"args,omitempty"`
	Mode    domain.Mode `json:"mode,omitempty"`
	Session string      `json:"session,omitempty"`
}

// runAccepted acknowledges a non-immediate submission.
type runAccepted struct {
	RunID  string        `json:"run_id"`
	Status domain.Status `json:"status"`
}

func (s *Server) runCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	req := domain.Request{Command: name, Args: body.Args, Mode: body.Mode, Session: body.Session}

	// Background (explicit or via the Long hint) detaches the HTTP
	// request from the run; the caller polls /runs/{id} or follows the
	// event stream. Everything else completes within the request.
	if body.Mode == domain.ModeBackground || s.defaultsToBackground(name, body.Mode) {
		run, err := s.app.Submit(r.Context(), req)
		if err != nil {
			s.writeSubmitError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, runAccepted{RunID: run.ID(), Status: domain.StatusRunning})
		return
	}

	run, err := s.app.Submit(r.Context(), req)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	res, err := run.Wait(r.Context())
	if err != nil {
		s.writeError(w, http.StatusGatewayTimeout, err)
		return
	}
	s.writeJSON(w, http.StatusOK, domain.NewRecord(res, req))
}

func (s *Server) defaultsToBackground(name string, mode domain.Mode) bool {
	if mode != "" {
		return false
	}
	cmd, ok := s.app.Resolve(name)
	return ok && cmd.Hints.Long
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	store := s.app.Store()
	if store == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("run persistence is not enabled"))
		return
	}
	records, err := store.List(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// In-flight runs are reported as running before the store is
	// consulted; they have no record yet.
	if run, ok := s.app.Runner().Get(id); ok && !run.Finished() {
		s.writeJSON(w, http.StatusOK, runAccepted{RunID: run.ID(), Status: domain.StatusRunning})
		return
	}

	store := s.app.Store()
	if store == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("run persistence is not enabled"))
		return
	}
	rec, err := store.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// runEvents streams one run's emissions over SSE: an "emit" event with
// the node's JSON per top-level emission (replaying those already on the
// stack first), then a final "done" event with the run's status.
func (s *Server) runEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	id := chi.URLParam(r, "id")
	run, ok := s.app.Runner().Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%s: %w (run finished or never existed)", id, domain.ErrRunNotFound))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rc := s.app.RenderContext()
	events := make(chan domain.Node, 64)
	existing, remove := run.ObserveFrom(func(n domain.Node) {
		select {
		case events <- n:
		default:
			s.logger.Warn("sse subscriber too slow, dropping event", "run_id", id)
		}
	})
	defer remove()

	fmt.Fprint(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	writeNode := func(n domain.Node) {
		data, err := rc.NodeJSON(n)
		if err != nil {
			s.logger.Error("failed to marshal sse node", "run_id", id, "err", err)
			return
		}
		fmt.Fprintf(w, "event: emit\ndata: %s\n\n", data)
		flusher.Flush()
	}
	for _, n := range existing {
		writeNode(n)
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case n := <-events:
			writeNode(n)
		case <-run.Done():
			// Drain anything observed before completion.
			for {
				select {
				case n := <-events:
					writeNode(n)
					continue
				default:
				}
				break
			}
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", run.Result().Status())
			flusher.Flush()
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

type apiError struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Debug("request failed", "status", status, "err", err)
	s.writeJSON(w, status, apiError{Error: err.Error()})
}

// writeSubmitError maps registry and argument faults onto HTTP codes.
func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	var argErr *domain.ArgumentError
	switch {
	case errors.Is(err, domain.ErrUnknownCommand):
		s.writeError(w, http.StatusNotFound, err)
	case errors.As(err, &argErr):
		s.writeError(w, http.StatusBadRequest, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}
