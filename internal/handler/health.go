package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/resumelens/resume-analyzer/internal/repository"
)

const healthPingTimeout = 2 * time.Second

// HealthHandler reports liveness plus database reachability.
type HealthHandler struct {
	db         repository.HealthChecker
	aiProvider string // "" when no AI client is configured
	logger     *slog.Logger
}

func NewHealthHandler(db repository.HealthChecker, aiProvider string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, aiProvider: aiProvider, logger: logger}
}

type healthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Database string `json:"database"`
	Message  string `json:"message"`
}

// Health handles GET /api/health.
//
// It always answers 200 while the process is serving; an unreachable
// database shows up as "database": "unavailable" rather than a failed probe,
// so a load balancer does not pull the instance for a transient DB blip.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	database := "connected"
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health: database ping failed", slog.String("error", err.Error()))
		database = "unavailable"
	}

	provider := h.aiProvider
	if provider == "" {
		provider = "none"
	}

	writeJSON(w, h.logger, http.StatusOK, healthResponse{
		Status:   "ok",
		Provider: provider,
		Database: database,
		Message:  "Resume Analyzer API is running",
	})
}
