package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	mode      string
	programID string
	startedAt time.Time
	checks    map[string]HealthCheck
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks may be nil.
func NewHealthHandler(mode, programID string, checks map[string]HealthCheck, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		programID: programID,
		startedAt: time.Now().UTC(),
		checks:    checks,
		logger:    logger,
	}
}

// HealthCheck reports "ok", or "degraded" with a 503 when any dependency
// check fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			h.logger.WarnContext(ctx, "handler: health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"mode":           h.mode,
		"program_id":     h.programID,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"dependencies":   deps,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
