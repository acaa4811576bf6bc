// Package httpapi wires the HTTP surface of the fintrack service.
// It keeps handlers thin, delegating business rules to the service layer.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/treiswell/fintrack/internal/service/book"
	"github.com/treiswell/fintrack/internal/service/rule"
)

// Server wires handlers and middleware using Chi.
// It composes read (repo) and write (writer) dependencies through services.
type Server struct {
	ruleSvc rule.Service
	bookSvc book.Service
	repo    Repository
	log     *slog.Logger
	rt      *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// events may be nil; storageTimeout bounds service-level storage calls.
func New(repo Repository, writer Writer, events book.EventPublisher, logger *slog.Logger, storageTimeout time.Duration) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	if auth := authJWTFromEnv(); auth != nil {
		r.Use(auth)
	}

	s := &Server{
		ruleSvc: rule.New(repo, writer),
		bookSvc: book.New(repo, writer, events, logger, storageTimeout),
		repo:    repo,
		rt:      r,
		log:     logger,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Entries (v1)
	s.rt.With(s.validateListEntries()).Get("/v1/entries", s.listEntries)
	s.rt.With(s.validatePostEntry()).Post("/v1/entries", s.postEntry)
	s.rt.With(s.validateMaterialize()).Post("/v1/entries/materialize", s.materializeEntry)
	s.rt.Patch("/v1/entries/{id}", s.updateEntry)
	s.rt.Delete("/v1/entries/{id}", s.deleteEntry)
	// Rules (v1)
	s.rt.With(s.validatePostRule()).Post("/v1/rules", s.postRule)
	s.rt.With(s.validateListRules()).Get("/v1/rules", s.listRules)
	s.rt.Get("/v1/rules/{id}", s.getRule)
	s.rt.Patch("/v1/rules/{id}", s.updateRule)
	s.rt.Delete("/v1/rules/{id}", s.deactivateRule)
	s.rt.Get("/v1/rules/{id}/history", s.ruleHistory)
	// Dictionary (v1)
	s.rt.Get("/v1/dictionary/categories", s.getCategoriesDictionary)
	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Get("/metrics", metricsHandler().ServeHTTP)
}
