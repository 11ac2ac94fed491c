package handler

import (
	"net/http"

	"github.com/capitalize-ai/roundtable/internal/middleware"
	"github.com/capitalize-ai/roundtable/internal/realtime"
)

// WSHandler upgrades realtime clients.
type WSHandler struct {
	hub *realtime.Hub
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Serve handles GET /ws?sessionId=...
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r, clientIdentity(r))
}

// clientIdentity is the user id for authenticated callers and the remote
// IP otherwise.
func clientIdentity(r *http.Request) string {
	if userID := middleware.GetUserID(r.Context()); userID != "" {
		return userID
	}
	return "anon:" + middleware.ClientIP(r)
}
