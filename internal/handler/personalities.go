package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/roundtable/internal/middleware"
	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/service"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

// PersonalityHandler handles agent persona endpoints.
type PersonalityHandler struct {
	service *service.PersonalityService
	logger  *logger.Logger
}

// NewPersonalityHandler creates a new personality handler.
func NewPersonalityHandler(svc *service.PersonalityService, log *logger.Logger) *PersonalityHandler {
	return &PersonalityHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/personalities
func (h *PersonalityHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.List(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, h.logger, err, "list personalities")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/personalities/{id}
func (h *PersonalityHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := h.service.Get(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "get personality")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Create handles POST /api/v1/personalities
func (h *PersonalityHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in model.PersonalityInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.service.Create(ctx, middleware.GetUserID(ctx), &in)
	if err != nil {
		writeServiceError(w, h.logger, err, "create personality")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// Update handles PUT /api/v1/personalities/{id}
func (h *PersonalityHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in model.PersonalityInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.service.Update(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id"), &in)
	if err != nil {
		writeServiceError(w, h.logger, err, "update personality")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/v1/personalities/{id}
func (h *PersonalityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.Delete(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err, "delete personality")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
