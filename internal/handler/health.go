package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is anything the health check can probe: the database, the Docker daemon.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the service can accept submissions.
type HealthHandler struct {
	checks map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler takes the dependencies to probe, keyed by the name shown
// in the response.
func NewHealthHandler(checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HandleHealth probes every dependency with a short deadline.
//
// HTTP: GET /healthz
//
// 200 {"status":"ok","checks":{"database":"ok","docker":"ok"}} when all pass,
// 503 with the failing check marked "unavailable" otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("health check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": results})
}
