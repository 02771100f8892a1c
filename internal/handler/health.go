package handler

import (
	"net/http"

	natsclient "github.com/capitalize-ai/essay-pipeline/internal/nats"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *natsclient.Client
	pipelines  int
}

// NewHealthHandler creates a new health handler. A nil client means the
// run journal is disabled and readiness does not depend on NATS.
func NewHealthHandler(natsClient *natsclient.Client, pipelines int) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		pipelines:  pipelines,
	}
}

// ReadyResponse is the body of GET /ready.
type ReadyResponse struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Journal   string `json:"journal"`
	Pipelines int    `json:"pipelines"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Journal: "disabled", Pipelines: h.pipelines}
	status := http.StatusOK

	if h.natsClient != nil {
		resp.Journal = "connected"
		if !h.natsClient.IsConnected() {
			resp.Status = "not ready"
			resp.Reason = "NATS not connected"
			resp.Journal = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}
	if h.pipelines == 0 {
		resp.Status = "not ready"
		resp.Reason = "no pipelines configured"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
