// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/roundtable/internal/middleware"
	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/service"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := h.service.Create(ctx, middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.List(ctx, middleware.GetUserID(ctx), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeServiceError(w, h.logger, err, "list conversations")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conv, err := h.service.Get(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "get conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// End handles POST /api/v1/conversations/{id}/end
func (h *ConversationHandler) End(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conv, err := h.service.End(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "end conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
