// Package web serves the JSON HTTP API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/justestif/playgroup/internal/aggregate"
	"github.com/justestif/playgroup/internal/cycles"
	"github.com/justestif/playgroup/internal/ledger"
	"github.com/justestif/playgroup/internal/metadata"
	"github.com/justestif/playgroup/internal/metrics"
	"github.com/justestif/playgroup/internal/users"
)

// DefaultAddr is the default server address.
const DefaultAddr = "127.0.0.1:8080"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr       string
	AdminToken string // empty disables the admin routes
	Logger     zerolog.Logger
	Gatherer   prometheus.Gatherer // nil disables /metrics

	Cycles    *cycles.Service
	Ledger    *ledger.Service
	Aggregate *aggregate.Service
	Users     *users.Service
	Metadata  metadata.Provider
}

// Server is the HTTP server for the API.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Cycles == nil || cfg.Ledger == nil || cfg.Aggregate == nil {
		return nil, errors.New("web: cycles, ledger and aggregate services are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	router := chi.NewRouter()
	s := &Server{
		router:   router,
		handlers: NewHandlers(cfg.Cycles, cfg.Ledger, cfg.Aggregate, cfg.Metadata),
		logger:   cfg.Logger.With().Str("component", "web").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes(cfg ServerConfig) {
	h := s.handlers

	s.router.Get("/healthz", h.Health)
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(identify(cfg.Users))

		r.Get("/cycle/current", h.CurrentCycle)
		r.Get("/cycle/current/submissions", h.CurrentSubmissions)
		r.Post("/submissions", h.Submit)

		r.Get("/albums/{id}", h.Album)
		r.Post("/albums/{id}/votes", h.CastVote)
		r.Get("/albums/{id}/reviews", h.Reviews)
		r.Post("/albums/{id}/reviews", h.SubmitReview)

		r.Get("/me/votes", h.MyVotes)
		r.Get("/users/{identity}/profile", h.Profile)
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/archive", h.Archive)
		r.Get("/taste-clusters", h.TasteClusters)
		r.Get("/search/albums", h.SearchAlbums)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin(cfg.AdminToken))
			r.Post("/cycles/{id}/transition", h.ForceTransition)
			r.Post("/cycles/{id}/voting-deadline", h.ExtendVoting)
		})
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and shuts it down gracefully on an interrupt
// signal or when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
	case <-ctx.Done():
	}
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
