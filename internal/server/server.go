// Package server wires handlers, middleware and routes together.
//
// This is the composition root: cmd/server opens the database and builds
// the AI client, and New assembles everything else from the config:
//
//	sqlstore.DB → CredentialStore → AuthService → AuthHandler
//	                              ↘ Gate (RequireAuth)
//	analysis.Client → analysis.Service → AnalysisHandler
//
// Each layer only receives what it needs. Handlers never touch the
// database and services never touch HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resumelens/resume-analyzer/internal/analysis"
	"github.com/resumelens/resume-analyzer/internal/auth"
	"github.com/resumelens/resume-analyzer/internal/config"
	"github.com/resumelens/resume-analyzer/internal/handler"
	"github.com/resumelens/resume-analyzer/internal/metrics"
	"github.com/resumelens/resume-analyzer/internal/middleware"
	"github.com/resumelens/resume-analyzer/internal/model"
	"github.com/resumelens/resume-analyzer/internal/repository/sqlstore"
	"github.com/resumelens/resume-analyzer/internal/service"
)

// Server is the HTTP server and the dependencies it was built from.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
}

// New builds the router. ai may be nil, in which case the analysis routes
// are not mounted. The server does not own db; the caller closes it.
func New(cfg *config.Config, db *sqlstore.DB, ai analysis.Client, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	if err := s.setupRoutes(db, ai); err != nil {
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the root handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET  /metrics                      Prometheus (when METRICS_ENABLED)
//	GET  /api/health
//	POST /api/auth/register            rate limited
//	POST /api/auth/login               rate limited
//	POST /api/auth/logout
//	GET  /api/auth/me                  Session Gate
//	GET  /api/auth/{provider}          google, github (when configured)
//	GET  /api/auth/{provider}/callback
//	POST /api/analyze-resume           Session Gate (when an AI key is set)
//	POST /api/match-job                Session Gate (when an AI key is set)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can print it; RealIP (only behind a
// trusted proxy) before anything that looks at the client address;
// Recoverer inside Logger so a panic is still logged as a 500.
func (s *Server) setupRoutes(db *sqlstore.DB, ai analysis.Client) error {
	cfg := s.config

	// === Metrics ===
	var rec metrics.Recorder = metrics.NewNoop()
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rec = metrics.New(registry)
	}

	// === Auth core ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService(cfg.Auth.BcryptCost)
	creds := service.NewCredentialStore(db, passwords)
	authService := service.NewAuthService(creds, tokens, rec, s.logger)
	gate := auth.NewGate(tokens, creds, rec, s.logger)

	var providers []handler.OAuthProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleProvider(
			cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret,
			cfg.CallbackURL(string(model.ProviderGoogle))))
	}
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubProvider(
			cfg.OAuth.GitHubClientID, cfg.OAuth.GitHubClientSecret,
			cfg.CallbackURL(string(model.ProviderGitHub))))
	}

	authHandler := handler.NewAuthHandler(
		authService,
		providers,
		handler.CookieConfig{Secure: cfg.IsProduction(), MaxAge: tokens.TTL()},
		cfg.Server.FrontendURL,
		rec,
		s.logger,
	)

	authLimit, err := middleware.RateLimit(middleware.RateLimitConfig{
		Rate:   cfg.Auth.RateLimit,
		Prefix: "auth",
	}, s.logger)
	if err != nil {
		return err
	}

	aiProvider := ""
	if ai != nil {
		aiProvider = cfg.AI.Provider
	}
	healthHandler := handler.NewHealthHandler(db, aiProvider, s.logger)

	// === Global middleware ===
	s.router.Use(chimiddleware.RequestID)
	if cfg.Auth.TrustProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Metrics(rec))
	s.router.Use(middleware.CORS(cfg.Server.FrontendURL))

	if registry != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.Route("/auth", func(r chi.Router) {
			r.With(authLimit).Post("/register", authHandler.Register)
			r.With(authLimit).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(gate.RequireAuth).Get("/me", authHandler.Me)

			r.Get("/{provider}", authHandler.OAuthStart)
			r.Get("/{provider}/callback", authHandler.OAuthCallback)
		})

		if ai == nil {
			s.logger.Warn("no AI API key configured, analysis routes disabled")
			return
		}
		analysisHandler := handler.NewAnalysisHandler(analysis.NewService(ai, s.logger), s.logger)
		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAuth)
			r.Post("/analyze-resume", analysisHandler.AnalyzeResume)
			r.Post("/match-job", analysisHandler.MatchJob)
		})
	})

	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully: it stops
// accepting connections and waits up to SHUTDOWN_TIMEOUT for in-flight
// requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Analysis calls wait on the model, which can take a while.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("environment", s.config.Server.Environment),
			slog.String("db_driver", s.config.Database.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
