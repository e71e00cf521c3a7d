// Package api exposes the knowledge base over HTTP for programmatic
// callers (chat bots, automation pipelines).
//
// Endpoints:
//
//	GET  /health            liveness probe
//	GET  /ready             readiness probe (pings the database)
//	GET  /api/search?q=...  hybrid search
//	POST /api/ingest/url    fetch nothing; ingest caller-provided page HTML
//	POST /api/ingest/manual ingest manually entered text
//	GET  /api/stats         knowledge base summary
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - knowledge.go: search, ingestion and stats endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/staffv/kbstore/internal/ingest"
	"github.com/staffv/kbstore/internal/log"
	"github.com/staffv/kbstore/internal/search"
	"github.com/staffv/kbstore/internal/stats"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Ingestion requests may wait on the embedding API.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// KnowledgeService is the slice of the service facade the HTTP handlers
// depend on.
type KnowledgeService interface {
	Search(ctx context.Context, caller, query string, opts ...search.Option) ([]search.Result, error)
	IngestURL(ctx context.Context, rawHTML []byte, sourceURL string) (ingest.Result, error)
	IngestManual(ctx context.Context, title, content string) (ingest.Result, error)
	Snapshot(ctx context.Context) (stats.Snapshot, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the knowledge base API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(svc KnowledgeService, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	NewHealthHandler(svc, logger).RegisterRoutes(mux)
	NewKnowledgeHandler(svc, logger).RegisterRoutes(mux)

	return &Server{mux: mux, logger: logger}
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, then logging, then the mux.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
