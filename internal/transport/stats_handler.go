package transport

import (
	"net/http"

	"shopsync/internal/middleware"
	"shopsync/internal/stats"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// StatsHandler serves aggregate stock statistics
type StatsHandler struct {
	stats  *stats.Service
	logger *zap.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(stats *stats.Service, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// RegisterRoutes registers the statistics routes
func (h *StatsHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/api/stats", h.GetSummary)
	})
}

// GetSummary returns the aggregated stock summary
func (h *StatsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.stats.Summarize(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute statistics", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, summary)
}
