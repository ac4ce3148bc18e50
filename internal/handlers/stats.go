package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/task-assistant/internal/models"
	"github.com/benvon/task-assistant/internal/services/tasks"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StatsService reports aggregate task and agent statistics
type StatsService interface {
	Stats(ctx context.Context, groupBy string) (*models.TaskStats, error)
	AgentPerformance(ctx context.Context) (*models.AgentPerformance, error)
}

var _ StatsService = (*tasks.Service)(nil)

// StatsHandler handles statistics requests
type StatsHandler struct {
	service StatsService
	logger  *zap.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(service StatsService, log *zap.Logger) *StatsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatsHandler{service: service, logger: log}
}

// RegisterRoutes registers stats routes on the /api/v1 router
func (h *StatsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/stats/categories", h.countBy("category")).Methods(http.MethodGet)
	r.HandleFunc("/stats/priorities", h.countBy("priority")).Methods(http.MethodGet)
	r.HandleFunc("/stats/status", h.countBy("status")).Methods(http.MethodGet)
	r.HandleFunc("/stats/agent-performance", h.AgentPerformance).Methods(http.MethodGet)
}

func (h *StatsHandler) countBy(column string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.service.Stats(r.Context(), column)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, stats)
	}
}

// AgentPerformance reports analysis outcome counts and latency
func (h *StatsHandler) AgentPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.service.AgentPerformance(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, perf)
}
