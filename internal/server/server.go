// Package server provides the HTTP chat API for vincentbot.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/vincentbot/internal/config"
	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/pipeline"
	"github.com/hyperjump/vincentbot/internal/storage"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// Server is the HTTP server for the chat API.
type Server struct {
	pipeline  *pipeline.Pipeline
	catalog   storage.Catalog
	passages  *keyword.PassageIndex
	diskPaths []string
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCatalog enables the document listing and catalog counts in status.
func WithCatalog(c storage.Catalog) ServerOption {
	return func(s *Server) { s.catalog = c }
}

// WithPassages enables keyword passage lookup.
func WithPassages(p *keyword.PassageIndex) ServerOption {
	return func(s *Server) { s.passages = p }
}

// WithDiskPaths lists the paths whose total size is reported by status.
func WithDiskPaths(paths ...string) ServerOption {
	return func(s *Server) { s.diskPaths = paths }
}

// NewServer creates a server answering through p.
func NewServer(p *pipeline.Pipeline, cfg *config.ServerConfig, logger *zap.Logger, opts ...ServerOption) *Server {
	s := &Server{
		pipeline: p,
		config:   cfg,
		logger:   utils.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the HTTP handler with all routes and middleware mounted.
func (s *Server) Router() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Post("/chat", s.handleChat)
		r.Get("/health", s.handleHealth)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Get("/api/v1/passages", s.handlePassages)
	})
	// Rebuilds run as long as embedding takes, not request_timeout.
	r.Post("/api/v1/rebuild", s.handleRebuild)
	return r
}

// Start starts the HTTP server and blocks until it stops. It returns
// http.ErrServerClosed after Stop, including when Stop ran first.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
