// Package server provides the HTTP API for the suggest service.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/suggest/internal/config"
	"github.com/hyperjump/suggest/internal/indexer"
	"github.com/hyperjump/suggest/internal/indexsync"
	"github.com/hyperjump/suggest/internal/search"
	"github.com/hyperjump/suggest/internal/storage"
	"github.com/hyperjump/suggest/internal/vector"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 60 * time.Second

// SyncStatus reports the index synchronizer's progress. *indexsync.Synchronizer implements it.
type SyncStatus interface {
	State() indexsync.State
	Stats() indexsync.Stats
}

// Server is the HTTP server for the suggest API.
type Server struct {
	search  *search.Service
	indexer *indexer.Indexer
	storage storage.Storage
	index   vector.VectorIndex
	sync    SyncStatus
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. sync may be nil.
func NewServer(
	svc *search.Service,
	idx *indexer.Indexer,
	store storage.Storage,
	index vector.VectorIndex,
	sync SyncStatus,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:  svc,
		indexer: idx,
		storage: store,
		index:   index,
		sync:    sync,
		config:  cfg,
		logger:  logger,
	}
	s.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/suggest", s.handleSuggest)
	r.Post("/scenarios", s.handleCreateScenario)
	r.Get("/scenarios/{id}", s.handleGetScenario)
	r.Put("/scenarios/{id}", s.handleUpdateScenario)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
