// Package main is the entry point for the resume analyzer API.
//
// main stays small: it loads configuration, builds the logger, the database
// and the optional AI client, then hands everything to internal/server.
// All request handling lives in the internal packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resumelens/resume-analyzer/internal/analysis"
	"github.com/resumelens/resume-analyzer/internal/config"
	"github.com/resumelens/resume-analyzer/internal/repository/sqlstore"
	"github.com/resumelens/resume-analyzer/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load(os.Args[1:], os.Environ())
	if err != nil {
		return err
	}

	// === 2. LOGGING ===
	// Text for humans in development, JSON for log shippers in production.
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// SIGINT (Ctrl+C) and SIGTERM (docker stop, Kubernetes) start a
	// graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === 3. DATABASE ===
	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return err
	}
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	db, err := sqlstore.Open(openCtx, dialect, cfg.Database.DSN, logger)
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()

	// === 4. AI CLIENT ===
	// Optional: without a key the server still runs, minus the analysis routes.
	var ai analysis.Client
	if key := cfg.AIAPIKey(); key != "" {
		client, err := analysis.NewOpenAIClient(analysis.OpenAIConfig{
			Provider: cfg.AI.Provider,
			APIKey:   key,
			Model:    cfg.AI.Model,
			Referer:  cfg.Server.FrontendURL,
		})
		if err != nil {
			return err
		}
		logger.Info("AI client ready",
			slog.String("provider", cfg.AI.Provider),
			slog.String("model", client.Model()),
		)
		ai = client
	}

	if !cfg.GoogleEnabled() {
		logger.Warn("Google OAuth not configured, /api/auth/google disabled")
	}
	if !cfg.GitHubEnabled() {
		logger.Warn("GitHub OAuth not configured, /api/auth/github disabled")
	}

	// === 5. SERVE ===
	srv, err := server.New(cfg, db, ai, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
