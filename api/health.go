package api

import (
	"net/http"

	"github.com/staffv/kbstore/internal/log"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	svc    KnowledgeService
	logger log.Logger
}

// NewHealthHandler creates a health handler. svc is used for readiness
// checks against the database.
func NewHealthHandler(svc KnowledgeService, logger log.Logger) *HealthHandler {
	return &HealthHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness returns 200 OK if the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness returns 200 OK if the database answers a ping.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		http.Error(w, "service not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
