package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/relicta-tech/deke/internal/expr"
)

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	Uptime          string `json:"uptime"`
	Version         string `json:"version,omitempty"`
	LanguageVersion string `json:"language_version"`
	PolicySets      int    `json:"policy_sets"`
	GoVersion       string `json:"go_version"`
}

// Health handles the health check endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "healthy",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Uptime:          time.Since(h.started).Round(time.Second).String(),
		Version:         h.version,
		LanguageVersion: expr.LanguageVersion,
		PolicySets:      len(h.order),
		GoVersion:       runtime.Version(),
	})
}

// Metrics serves the evaluation metrics for Prometheus scrapes.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metricsHandler.ServeHTTP(w, r)
}
