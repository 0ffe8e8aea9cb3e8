// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer; it connects handlers, middleware, and routes.
// It decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go builds the sandbox, the judge, the database and the services, then
// hands them over in Deps. New only mounts them. Keeping construction out of
// here is what lets server_test.go drive the full router with fakes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/cjudge/internal/auth"
	"github.com/sakif/cjudge/internal/handler"
	"github.com/sakif/cjudge/internal/middleware"
)

// Config holds server configuration.
type Config struct {
	Port int
	// WriteTimeout must outlast the slowest judge request; the judge's pass
	// timeout has to stay below it.
	WriteTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	// AdminKeyHash is the bcrypt hash of the admin key. Empty disables the
	// problem management routes (they answer 403).
	AdminKeyHash string
}

// Deps are the already-built collaborators the routes are mounted on.
type Deps struct {
	Execution   handler.ExecutionService
	Problems    handler.ProblemService
	Submissions handler.SubmissionService

	// Auth is nil when JWT_SECRET or the GitHub app is not configured; the
	// login routes are then not registered.
	Auth      *handler.AuthHandler
	Tokens    *auth.TokenService
	AdminKeys *auth.KeyHasher

	// Health maps a check name to the dependency it probes.
	Health map[string]handler.Pinger

	// Closers are released, in order, after the HTTP server has stopped.
	Closers []io.Closer
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	config  Config
	deps    Deps
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// New creates a Server and mounts every route.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Execution == nil {
		return nil, errors.New("server: execution service is required")
	}
	if deps.Problems == nil || deps.Submissions == nil {
		return nil, errors.New("server: problem and submission services are required")
	}
	if deps.AdminKeys == nil {
		deps.AdminKeys = auth.NewKeyHasher()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 120 * time.Second
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		deps:    deps,
		limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		logger:  logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                       → dependency probes
// GET    /metrics                       → Prometheus scrape
// POST   /api/c/run                     → compile and run once      [rate limited]
// POST   /api/c/judge                   → judge against test cases  [rate limited, optional auth]
// GET    /api/problems                  → catalog, no test cases
// GET    /api/problems/{id}             → one problem, no test cases
// GET    /api/problems/{id}/full        → with test cases           [admin key]
// POST   /api/problems                  → create                    [admin key]
// POST   /api/problems/import           → bulk upsert               [admin key]
// PUT    /api/problems/{id}             → update                    [admin key]
// DELETE /api/problems/{id}             → delete                    [admin key]
// GET    /api/submissions/me            → caller's history          [auth]
// GET    /api/submissions/me/solved     → solved/attempted IDs      [auth]
// GET    /api/me                        → caller's profile          [auth]
// GET    /auth/github/login, /auth/github/callback, POST /auth/logout
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so every later log line can carry it. RealIP before the
// rate limiter so buckets are keyed by client, not by proxy.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	health := handler.NewHealthHandler(s.deps.Health, s.logger)
	s.router.Get("/healthz", health.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	execute := handler.NewExecuteHandler(s.deps.Execution, s.logger)
	problems := handler.NewProblemHandler(s.deps.Problems, s.logger)
	submissions := handler.NewSubmissionHandler(s.deps.Submissions, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/c", func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/run", execute.HandleRun)
			// Anonymous judging is allowed; a valid session only adds history.
			r.With(auth.OptionalAuth(s.deps.Tokens)).Post("/judge", execute.HandleJudge)
		})

		r.Route("/problems", func(r chi.Router) {
			r.Get("/", problems.HandleList)
			r.Get("/{id}", problems.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdminKey(s.deps.AdminKeys, s.config.AdminKeyHash))
				r.Get("/{id}/full", problems.HandleGetFull)
				r.Post("/", problems.HandleCreate)
				r.Post("/import", problems.HandleImport)
				r.Put("/{id}", problems.HandleUpdate)
				r.Delete("/{id}", problems.HandleDelete)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.deps.Tokens))
			r.Get("/submissions/me", submissions.HandleListMine)
			r.Get("/submissions/me/solved", submissions.HandleSolved)
			if s.deps.Auth != nil {
				r.Get("/me", s.deps.Auth.HandleMe)
			}
		})
	})

	if s.deps.Auth != nil {
		s.router.Get("/auth/github/login", s.deps.Auth.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", s.deps.Auth.HandleGitHubCallback)
		s.router.Post("/auth/logout", s.deps.Auth.HandleLogout)
	} else {
		s.logger.Warn("login routes disabled: JWT_SECRET or GitHub OAuth app not configured")
	}
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish; a judge request may take a while
//  3. Release the closers (sandbox client, database)
func (s *Server) Start() error {
	defer s.closeAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.limiter.Cleanup(ctx, time.Minute, 10*time.Minute)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) closeAll() {
	for _, c := range s.deps.Closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
}
