// Package server provides the HTTP API for Kensaku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/config"
	"github.com/kensaku-ai/kensaku/internal/pipeline"
)

// Server is the HTTP server for the Kensaku API.
type Server struct {
	pipeline  *pipeline.Pipeline
	config    *config.ServerConfig
	uploadDir string
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. uploadDir receives
// files posted to the upload endpoint before ingestion.
func NewServer(p *pipeline.Pipeline, cfg *config.ServerConfig, uploadDir string, logger *zap.Logger) *Server {
	return &Server{
		pipeline:  p,
		config:    cfg,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest/text", s.handleIngestText)
		r.Post("/ingest/file", s.handleIngestFile)
		r.Post("/ingest/batch", s.handleIngestBatch)

		r.Post("/query", s.handleQuery)
		r.Post("/search", s.handleSearch)
		r.Post("/quiz", s.handleQuiz)
		r.Post("/summary", s.handleSummary)

		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/documents/{id}/similar", s.handleSimilarDocuments)

		r.Get("/sources", s.handleListSources)
		r.Delete("/sources/{id}", s.handleDeleteSource)

		r.Get("/info", s.handleSystemInfo)
		r.Post("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Post("/clear", s.handleClear)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
