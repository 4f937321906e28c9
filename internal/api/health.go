package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tenxafrica/intake/internal/store"
)

const defaultHealthTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	forms   int
	timeout time.Duration
}

// NewHealthHandler creates a new health handler. forms is the number of
// loaded form definitions.
func NewHealthHandler(repo store.Repository, forms int) *HealthHandler {
	return &HealthHandler{repo: repo, forms: forms, timeout: defaultHealthTimeout}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "forms": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if h.forms == 0 {
		checks["forms"] = "none loaded"
		status = "degraded"
	}
	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		checks["store"] = "unreachable"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	JSON(w, statusCode, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
