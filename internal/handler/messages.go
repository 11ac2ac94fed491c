package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/roundtable/internal/middleware"
	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/service"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service *service.MessageService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.List(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "list messages")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Edit handles PUT /api/v1/conversations/{id}/messages/{msgID}
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.EditMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.Edit(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id"), chi.URLParam(r, "msgID"), &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "edit message")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Respond handles POST /api/v1/conversations/{id}/responses
func (h *MessageHandler) Respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.GenerateResponseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.GenerateResponse(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "generate response")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
