package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/roundtable/internal/middleware"
	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/service"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

// OrchestrationHandler starts multi-agent runs and summarises finished ones.
type OrchestrationHandler struct {
	orchestration *service.OrchestrationService
	insights      *service.InsightsService
	logger        *logger.Logger
}

// NewOrchestrationHandler creates a new orchestration handler.
func NewOrchestrationHandler(orch *service.OrchestrationService, insights *service.InsightsService, log *logger.Logger) *OrchestrationHandler {
	return &OrchestrationHandler{
		orchestration: orch,
		insights:      insights,
		logger:        log,
	}
}

// Orchestrate handles POST /api/v1/conversations/{id}/orchestrate. The run
// continues in the background; progress arrives over the WebSocket.
func (h *OrchestrationHandler) Orchestrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.OrchestrateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.orchestration.Start(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "start orchestration")
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// Insights handles POST /api/v1/conversations/{id}/insights
func (h *OrchestrationHandler) Insights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.insights.Generate(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "generate insights")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
