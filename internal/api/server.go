// Package api exposes the HTTP interface for the reader service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/engine"
	"github.com/metisreader/metis/internal/metrics"
	"github.com/metisreader/metis/internal/middleware"
	"github.com/metisreader/metis/internal/reader"
	"github.com/metisreader/metis/internal/store"
	"github.com/metisreader/metis/internal/workflow"
)

// Server wires HTTP handlers to the engine.
type Server struct {
	router chi.Router
	engine *engine.Engine
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(eng *engine.Engine, logger *zap.Logger) *Server {
	s := &Server{engine: eng, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/urls", func(r chi.Router) {
			r.Post("/", s.submitURL)
			r.Get("/", s.listURLs)
			r.Post("/transition", s.transitionURL)
			r.Post("/reset", s.resetURL)
		})
		r.Post("/sync", s.sync)
		r.Post("/reconcile", s.reconcile)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type urlRequest struct {
	URL string `json:"url"`
}

type transitionRequest struct {
	URL string `json:"url"`
	To  string `json:"to"`
}

func (s *Server) submitURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	rec, err := s.engine.Submit(req.URL)
	if err != nil {
		if errors.Is(err, reader.ErrParse) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, recordPayload(rec))
}

func (s *Server) listURLs(w http.ResponseWriter, r *http.Request) {
	state := workflow.State(r.URL.Query().Get("state"))
	if state != "" && !state.Valid() {
		writeError(w, http.StatusBadRequest, "unknown state")
		return
	}
	records, err := s.engine.List(state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		payload = append(payload, recordPayload(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"urls": payload})
}

func (s *Server) transitionURL(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	to := workflow.State(req.To)
	if !to.Valid() {
		writeError(w, http.StatusBadRequest, "unknown target state")
		return
	}
	rec, err := s.engine.Transition(req.URL, to)
	if err != nil {
		var invalid *workflow.InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "url not tracked")
		case errors.Is(err, reader.ErrParse):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, recordPayload(rec))
}

func (s *Server) resetURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	rec, err := s.engine.Reset(req.URL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "url not tracked")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordPayload(rec))
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	if _, err := s.engine.IngestInbox(r.Context()); err != nil {
		s.logger.Warn("inbox ingestion failed", zap.Error(err))
	}
	results, err := s.engine.Sync(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := make([]map[string]any, 0, len(results))
	for _, res := range results {
		entry := map[string]any{
			"url":     res.URL,
			"outcome": res.Outcome,
		}
		if res.Path != "" {
			entry["path"] = res.Path
		}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		}
		payload = append(payload, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": payload})
}

func (s *Server) reconcile(w http.ResponseWriter, _ *http.Request) {
	report, err := s.engine.Reconcile()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scanned":     report.Scanned,
		"indexed":     report.Indexed,
		"quarantined": report.Quarantined,
		"orphaned":    report.Orphaned,
	})
}

func recordPayload(rec *workflow.Record) map[string]any {
	return map[string]any{
		"url":           rec.URL,
		"title":         rec.Title,
		"platform":      rec.Platform,
		"state":         string(rec.State),
		"document_path": rec.DocumentPath,
		"failure_text":  rec.FailureText,
		"updated_at":    rec.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
