// Package realtime fans conversation events out to WebSocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/pkg/logger"
	"github.com/capitalize-ai/roundtable/pkg/metrics"
)

// Mirror receives a copy of every broadcast event.
type Mirror interface {
	PublishEvent(ctx context.Context, evt model.Event) error
}

// Config holds hub timing and buffer settings.
type Config struct {
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	WriteWait         time.Duration
	SendBuffer        int
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return c
}

// pongWait is how long a connection may stay silent before it is dropped.
func (c Config) pongWait() time.Duration {
	return c.HeartbeatInterval * 2
}

type connKey struct {
	client  string
	session string
}

// Hub is the registry of live WebSocket connections.
type Hub struct {
	cfg      Config
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mirrorMu sync.RWMutex
	mirror   Mirror

	// handle processes one inbound client frame.
	handle func(c *Conn, data []byte)

	mu     sync.Mutex
	conns  map[connKey]*Conn
	closed bool
}

// NewHub creates an empty hub.
func NewHub(cfg Config, log *logger.Logger) *Hub {
	return &Hub{
		cfg:    cfg.withDefaults(),
		logger: log.Named("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		handle: (*Conn).handleInbound,
		conns:  make(map[connKey]*Conn),
	}
}

// SetMirror installs m to receive every broadcast event.
func (h *Hub) SetMirror(m Mirror) {
	h.mirrorMu.Lock()
	h.mirror = m
	h.mirrorMu.Unlock()
}

// ServeWS upgrades the request and registers the connection for clientID.
// The sessionId query parameter is echoed back when present, so a client
// can reconnect into the same session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, clientID string) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if len(sessionID) > model.MaxSessionIDLength {
		http.Error(w, "sessionId too long", http.StatusBadRequest)
		return
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
		return
	}

	c := newConn(h, ws, connKey{client: clientID, session: sessionID})

	welcome, err := json.Marshal(model.Event{
		Type: model.EventConnectionEstablished,
		Data: model.ConnectionEstablished{
			SessionID: sessionID,
			ClientID:  clientID,
			Timestamp: time.Now().UTC(),
		},
	})
	if err != nil {
		h.logger.Error("failed to marshal welcome event", zap.Error(err))
		_ = ws.Close()
		return
	}
	// Queued before the connection is visible to Broadcast, so it is
	// always the first frame.
	c.send <- welcome
	c.state.Store(stateOpen)

	if !h.register(c) {
		_ = ws.Close()
		return
	}
	metrics.IncrementWSConnections()

	h.logger.Info("websocket connected",
		zap.String("client_id", clientID),
		zap.String("session_id", sessionID),
		zap.String("remote_addr", r.RemoteAddr),
	)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *Conn) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	old := h.conns[c.key]
	h.conns[c.key] = c
	h.mu.Unlock()

	if old != nil {
		h.logger.Info("replacing websocket for session",
			zap.String("client_id", c.key.client),
			zap.String("session_id", c.key.session),
		)
		old.close()
	}
	return true
}

// remove drops c from the registry if it is still the registered entry.
func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	if cur, ok := h.conns[c.key]; ok && cur == c {
		delete(h.conns, c.key)
	}
	h.mu.Unlock()
}

// Broadcast sends evt to every open connection without blocking. A
// connection whose queue is full is closed; the others still receive evt.
func (h *Hub) Broadcast(ctx context.Context, evt model.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal event",
			zap.String("type", string(evt.Type)),
			zap.Error(err),
		)
		return
	}
	metrics.EventsBroadcastTotal.WithLabelValues(string(evt.Type)).Inc()

	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		if c.isOpen() {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			metrics.WSBroadcastFailures.Inc()
			h.logger.Warn("dropping slow websocket client",
				zap.String("client_id", c.key.client),
				zap.String("session_id", c.key.session),
				zap.String("type", string(evt.Type)),
			)
			c.close()
		}
	}

	h.mirrorMu.RLock()
	mirror := h.mirror
	h.mirrorMu.RUnlock()
	if mirror != nil {
		if err := mirror.PublishEvent(ctx, evt); err != nil {
			h.logger.Warn("failed to mirror event",
				zap.String("type", string(evt.Type)),
				zap.Error(err),
			)
		}
	}
}

// Sweep force-closes registry entries whose connection is not open and
// returns how many were removed.
func (h *Hub) Sweep() int {
	h.mu.Lock()
	var stale []*Conn
	for key, c := range h.conns {
		if !c.isOpen() {
			delete(h.conns, key)
			stale = append(stale, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stale {
		c.close()
	}
	if len(stale) > 0 {
		h.logger.Info("swept stale websockets", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Run sweeps the registry periodically until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close closes every connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make([]*Conn, 0, len(h.conns))
	for key, c := range h.conns {
		all = append(all, c)
		delete(h.conns, key)
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}
