// Package server exposes the session boundary over HTTP: session
// lifecycle, queries, mode toggling, health and metrics.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/orchestrator"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/session"
)

// principalHeader carries the externally authenticated user. Requests
// without it share the global session pool.
const principalHeader = "x-auth-user"

// Server routes HTTP requests to the session manager.
type Server struct {
	manager  *session.Manager
	registry *prometheus.Registry
	logger   *slog.Logger
}

// New creates a server.
func New(manager *session.Manager, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{manager: manager, registry: registry, logger: logger}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/query", s.handleQuery)
			r.Post("/mode", s.handleToggleMode)
			r.Delete("/", s.handleDeleteSession)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Create(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": sess.ID(),
		"model":      sess.Model(),
		"mode":       string(sess.Mode()),
	})
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(principal(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("body must be JSON with a non-empty query field"))
		return
	}

	reply, err := sess.ProcessQuery(r.Context(), req.Query, nil)
	if err != nil {
		var orchErr *orchestrator.Error
		if errors.As(err, &orchErr) && orchErr.Kind == orchestrator.KindPlanInvalid {
			// Plan rejections are user-visible verbatim.
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": orchErr.Error(),
				"kind":  string(orchErr.Kind),
			})
			return
		}
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleToggleMode(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(principal(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(sess.ToggleMode())})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(principal(r), chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("Request failed", "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func principal(r *http.Request) string {
	return r.Header.Get(principalHeader)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
