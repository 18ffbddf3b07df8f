package handler

import (
	"net/http"

	"github.com/omnidesk/omnichannel-crm/internal/queue"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *queue.NATSClient
}

// NewHealthHandler creates a new health handler. natsClient may be nil
// when running against the in-memory queue.
func NewHealthHandler(natsClient *queue.NATSClient) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
