// Package endpoint serves repositories over the SPARQL 1.1 protocol.
package endpoint

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
	"github.com/geoknoesis/sparql-rows/results"
)

// NewRouter exposes each repository at /repositories/{id}.
func NewRouter(repos map[string]repository.Repository, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))

	h := &handlers{repos: repos, logger: logger}

	r.Get("/healthz", h.GetHealth)
	r.Get("/repositories/{id}", h.Query)
	r.Post("/repositories/{id}", h.Query)
	return r
}

type handlers struct {
	repos  map[string]repository.Repository
	logger *slog.Logger
}

func (h *handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Query answers a SPARQL protocol query request.
func (h *handlers) Query(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	repo, ok := h.repos[id]
	if !ok {
		http.Error(w, "unknown repository "+id, http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	query := r.Form.Get("query")
	if strings.TrimSpace(query) == "" {
		http.Error(w, "missing query parameter", http.StatusBadRequest)
		return
	}
	var dataset repository.Dataset
	for _, g := range r.Form["default-graph-uri"] {
		iri, err := rdf.ParseIRI(g)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dataset.DefaultGraphs = append(dataset.DefaultGraphs, iri)
	}

	ctx := r.Context()
	conn, err := repo.Connection(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer conn.Close()

	result, err := conn.Evaluate(ctx, query, dataset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer result.Close()

	if wantsTSV(r.Header.Get("Accept")) {
		w.Header().Set("Content-Type", results.ContentTypeTSV)
		err = results.WriteTSV(w, result)
	} else {
		w.Header().Set("Content-Type", results.ContentTypeJSON)
		err = results.EncodeJSON(w, result)
	}
	if err != nil {
		// Headers are already sent; all that is left is to log.
		h.logger.Error("write results", "error", err, "request_id", middleware.GetReqID(ctx))
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, repository.ErrQuery) {
		status = http.StatusBadRequest
	}
	h.logger.Warn("query failed",
		"code", repository.Code(err),
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
	http.Error(w, err.Error(), status)
}

func wantsTSV(accept string) bool {
	return strings.Contains(accept, "text/tab-separated-values")
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
