package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/middleware"
	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/service"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

const (
	defaultReplayLimit = 100
	maxReplayLimit     = 1000
)

// Replayer reads journaled events of a conversation.
type Replayer interface {
	Replay(ctx context.Context, conversationID string, limit int) ([]model.Event, error)
}

// EventHandler serves the event journal.
type EventHandler struct {
	journal       Replayer
	conversations *service.ConversationService
	logger        *logger.Logger
}

// ReplayResponse is the response for an event replay.
type ReplayResponse struct {
	ConversationID string        `json:"conversation_id"`
	Events         []model.Event `json:"events"`
	Count          int           `json:"count"`
}

// NewEventHandler creates a new event handler.
func NewEventHandler(journal Replayer, conversations *service.ConversationService, log *logger.Logger) *EventHandler {
	return &EventHandler{
		journal:       journal,
		conversations: conversations,
		logger:        log,
	}
}

// Replay handles GET /api/v1/conversations/{id}/events
// Supports ?limit=N, oldest events first.
func (h *EventHandler) Replay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if _, err := h.conversations.Get(ctx, middleware.GetUserID(ctx), conversationID); err != nil {
		writeServiceError(w, h.logger, err, "replay events")
		return
	}

	limit := queryInt(r, "limit", defaultReplayLimit)
	if limit == 0 {
		limit = defaultReplayLimit
	}
	if limit > maxReplayLimit {
		limit = maxReplayLimit
	}

	events, err := h.journal.Replay(ctx, conversationID, limit)
	if err != nil {
		writeServiceError(w, h.logger, fmt.Errorf("journal replay: %w", err), "replay events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	h.logger.Debug("events replayed",
		zap.String("conversation_id", conversationID),
		zap.Int("count", len(events)),
	)

	writeJSON(w, http.StatusOK, &ReplayResponse{
		ConversationID: conversationID,
		Events:         events,
		Count:          len(events),
	})
}
