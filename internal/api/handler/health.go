// Package handler implements the REST endpoints. Each handler decodes
// its dto request, runs the matching key operation, and encodes the
// result; private key bytes never leave through this package.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/keyfob-io/keyfob/internal/api/dto"
	apierrors "github.com/keyfob-io/keyfob/internal/api/errors"
	"github.com/keyfob-io/keyfob/pkg/bind"
	"github.com/keyfob-io/keyfob/pkg/keyring"
)

// HealthHandler serves the liveness, readiness, and ring counter
// endpoints.
type HealthHandler struct {
	version string
	surface *bind.Surface
}

// NewHealthHandler builds a HealthHandler reporting the given version.
func NewHealthHandler(version string, surface *bind.Surface) *HealthHandler {
	return &HealthHandler{
		version: version,
		surface: surface,
	}
}

// Health answers GET /healthz.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready answers GET /readyz. The server is ready once the key layer is
// armed and its operation table answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"surface": h.surface != nil,
	}
	if h.surface != nil {
		_, err := h.surface.Call(r.Context(), "stats", bind.Args{})
		checks["ring"] = err == nil
	}

	allReady := true
	for _, ready := range checks {
		if !ready {
			allReady = false
			break
		}
	}

	status := http.StatusOK
	if !allReady {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, dto.ReadyResponse{
		Ready:  allReady,
		Checks: checks,
	})
}

// Stats answers GET /api/v1/stats with the ring's lifetime counters.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	result, err := h.surface.Call(r.Context(), "stats", bind.Args{})
	if err != nil {
		respondMappedError(w, err)
		return
	}

	stats := result.(keyring.Stats)
	respondJSON(w, http.StatusOK, dto.StatsResponse{
		Live:      stats.Live,
		Acquired:  stats.Acquired,
		Released:  stats.Released,
		Finalized: stats.Finalized,
		Borrows:   stats.Borrows,
	})
}

// respondJSON encodes data as the response body with the given status.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "response encoding failed", http.StatusInternalServerError)
	}
}

// respondError emits an APIError body with the given status.
func respondError(w http.ResponseWriter, status int, apiErr *dto.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErr)
}

// respondMappedError maps an operation error to its HTTP shape.
func respondMappedError(w http.ResponseWriter, err error) {
	status, apiErr := apierrors.MapError(err)
	respondError(w, status, apiErr)
}
