package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/gradegate/pkg/http"
)

// HealthCheck checks one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler reports dependency health
type HealthHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body := map[string]string{"status": "healthy"}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			body[name] = "down"
			body["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "up"
	}

	pkghttp.WriteJSON(w, status, body)
}
