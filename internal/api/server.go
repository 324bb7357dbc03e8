package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/switchboard/internal/engine"
	"github.com/mattjoyce/switchboard/internal/events"
	"github.com/mattjoyce/switchboard/internal/handler"
	"github.com/mattjoyce/switchboard/internal/journal"
)

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks github.com/mattjoyce/switchboard/internal/api Dispatcher,JournalReader

// Dispatcher defines the dispatch operation exposed over HTTP.
type Dispatcher interface {
	Execute(req *handler.Request) (*engine.Result, error)
}

// CatalogReader defines the catalog queries the API serves.
type CatalogReader interface {
	Capabilities() []string
	Lookup(capability string) []handler.Handler
	Size() int
}

// JournalReader defines read access to the dispatch journal.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Record, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the bearer token required on authenticated routes.
	APIKey string
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	dispatcher Dispatcher
	catalog    CatalogReader
	journal    JournalReader
	events     *events.Hub
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a new API server instance. journal and hub may be nil when the
// host runs without persistence or event streaming.
func New(config Config, dispatcher Dispatcher, catalog CatalogReader, journal JournalReader, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		catalog:    catalog,
		journal:    journal,
		events:     hub,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // SSE clients hold the connection open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/v1/dispatch/{capability}", s.handleDispatch)
		r.Get("/v1/capabilities", s.handleCapabilities)
		r.Get("/v1/handlers", s.handleHandlers)
		r.Get("/v1/journal", s.handleJournal)
		r.Get("/v1/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
