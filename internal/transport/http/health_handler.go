package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"licensegate/internal/config"
	"licensegate/internal/license"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	state   StateReporter
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(state StateReporter) *HealthHandler {
	return &HealthHandler{state: state, started: time.Now()}
}

// HealthResponse reports liveness and the license state
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Uptime  string        `json:"uptime"`
	License license.State `json:"license"`
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:  "ok",
		Version: config.AppVersion,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		License: h.state.State(),
	})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"name":    config.AppName,
		"version": config.AppVersion,
	})
}
