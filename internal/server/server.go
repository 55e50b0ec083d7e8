// Package server provides the HTTP API over a quiver database.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/quiverdb/quiver"
	"github.com/quiverdb/quiver/embedding"
)

// Server is the HTTP server for the quiver API.
type Server struct {
	db       *quiver.DB
	embedder embedding.Provider
	logger   *zap.Logger
	server   *http.Server
}

// New creates a server with the given dependencies.
func New(db *quiver.DB, embedder embedding.Provider, logger *zap.Logger) *Server {
	return &Server{db: db, embedder: embedder, logger: logger}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/reset", s.handleReset)

	r.Post("/libraries", s.handleCreateLibrary)
	r.Get("/libraries", s.handleListLibraries)
	r.Get("/libraries/{id}", s.handleGetLibrary)
	r.Put("/libraries/{id}", s.handleUpdateLibrary)
	r.Delete("/libraries/{id}", s.handleDeleteLibrary)

	r.Post("/documents", s.handleCreateDocument)
	r.Get("/documents", s.handleListDocuments)
	r.Get("/documents/{id}", s.handleGetDocument)
	r.Put("/documents/{id}", s.handleUpdateDocument)
	r.Delete("/documents/{id}", s.handleDeleteDocument)

	r.Post("/chunks", s.handleCreateChunk)
	r.Get("/chunks", s.handleListChunks)
	r.Get("/chunks/{id}", s.handleGetChunk)
	r.Put("/chunks/{id}", s.handleUpdateChunk)
	r.Delete("/chunks/{id}", s.handleDeleteChunk)

	r.Post("/query", s.handleQuery)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
