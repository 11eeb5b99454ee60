// Package http exposes the pipeline engine over a small JSON API.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	mermaid "github.com/pergolab/pergola/internal/presentation/graph"
	"github.com/pergolab/pergola/pkg/domain"
	"github.com/pergolab/pergola/pkg/graph"
	"github.com/pergolab/pergola/pkg/ports"
)

// Pipeline defines the engine surface the HTTP layer needs.
type Pipeline interface {
	ports.Submitter
	Graph() *graph.Graph
}

// Server maps HTTP requests onto pipeline operations.
type Server struct {
	pipeline Pipeline
	reports  ports.ReportStore
}

// SubmitRequest is the POST /runs body.
type SubmitRequest struct {
	Initial map[string]any `json:"initial"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Node  string `json:"node,omitempty"`
}

// NewHandler wires the API routes. The metrics handler is optional; pass nil
// to skip mounting /metrics.
func NewHandler(pipeline Pipeline, reports ports.ReportStore, metrics http.Handler) http.Handler {
	server := &Server{pipeline: pipeline, reports: reports}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Post("/runs", server.SubmitRun)
	r.Get("/runs", server.ListRuns)
	r.Get("/runs/{runID}", server.GetRun)
	r.Get("/graph", server.GetGraph)

	return r
}

// SubmitRun handles POST /runs. A completed or degraded run returns 200 with
// the report; an aborted run returns 422 with the failing node.
func (s *Server) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	report, err := s.pipeline.Submit(r.Context(), body.Initial)
	if err != nil {
		var runErr *domain.RunError
		if report == nil && errors.As(err, &runErr) {
			writeError(w, http.StatusUnprocessableEntity, runErr.Error(), runErr.NodeID)
			return
		}
		if report == nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "")
			return
		}
		// Degraded run: partial report is still the answer.
	}

	if s.reports != nil {
		if saveErr := s.reports.Save(r.Context(), report); saveErr != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("archiving report: %v", saveErr), "")
			return
		}
	}

	writeJSON(w, http.StatusOK, report)
}

// GetRun handles GET /runs/{runID}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotImplemented, "report archive not configured", "")
		return
	}

	runID := chi.URLParam(r, "runID")
	report, err := s.reports.Load(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "run not found", "")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotImplemented, "report archive not configured", "")
		return
	}

	ids, err := s.reports.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": ids})
}

// GetGraph handles GET /graph, returning the Mermaid rendering.
func (s *Server) GetGraph(w http.ResponseWriter, _ *http.Request) {
	g := s.pipeline.Graph()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, mermaid.GenerateMermaid(g.Nodes(), g.Edges()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing useful left to do.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg, node string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Node: node})
}
