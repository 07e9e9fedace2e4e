package transport

import (
	"net/http"

	"shopsync/internal/middleware"
	"shopsync/internal/syncer"

	"github.com/go-chi/chi/v5"
)

// SyncStatusResponse reports the most recent sync outcome
type SyncStatusResponse struct {
	Status string `json:"status"`
}

// SyncHandler exposes the sync engine's status signal
type SyncHandler struct {
	engine *syncer.Engine
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(engine *syncer.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// RegisterRoutes registers the sync routes
func (h *SyncHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/api/sync/status", h.GetStatus)
	})
}

// GetStatus returns the latest sync status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, SyncStatusResponse{
		Status: string(h.engine.Status()),
	})
}
