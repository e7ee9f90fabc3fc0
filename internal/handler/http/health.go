package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	ready   atomic.Bool
	usageDB Pinger
	log     zerolog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(usageDB Pinger, log zerolog.Logger) *HealthHandler {
	h := &HealthHandler{usageDB: usageDB, log: log}
	h.ready.Store(true)
	return h
}

// SetReady sets the ready state.
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Health checks if the service is healthy.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "speech_portal",
	})
}

// Ready checks if the service is ready to receive traffic.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
	})
}

// Live checks if the service is alive (for Kubernetes liveness probe).
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
	})
}

// APIHealth handles GET /api/health. It answers 503 when the usage store
// cannot be reached.
func (h *HealthHandler) APIHealth(w http.ResponseWriter, r *http.Request) {
	usageDB := true
	if h.usageDB != nil {
		if err := h.usageDB.Ping(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Usage store health check failed")
			usageDB = false
		}
	}

	status := http.StatusOK
	if !usageDB {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"ok":       usageDB,
		"usage_db": usageDB,
	})
}

// Probes are answered bare, outside the response envelope.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
