package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/pkg/metrics"
)

// Connection states.
const (
	stateConnecting int32 = iota
	stateOpen
	stateClosing
	stateClosed
)

const maxInboundSize = 4096

// Conn is one registered WebSocket client. It owns a read and a write
// goroutine that both end when the connection closes.
type Conn struct {
	hub *Hub
	ws  *websocket.Conn
	key connKey

	send      chan []byte
	done      chan struct{}
	state     atomic.Int32
	closeOnce sync.Once
}

func newConn(h *Hub, ws *websocket.Conn, key connKey) *Conn {
	return &Conn{
		hub:  h,
		ws:   ws,
		key:  key,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Conn) isOpen() bool {
	return c.state.Load() == stateOpen
}

// enqueue queues data without blocking. It fails when the connection is
// not open or its queue is full.
func (c *Conn) enqueue(data []byte) bool {
	if !c.isOpen() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.state.Store(stateClosing)
		close(c.done)

		deadline := time.Now().Add(c.hub.cfg.WriteWait)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.ws.Close()

		c.state.Store(stateClosed)
		c.hub.remove(c)
		metrics.DecrementWSConnections()

		c.hub.logger.Info("websocket closed",
			zap.String("client_id", c.key.client),
			zap.String("session_id", c.key.session),
		)
	})
}

func (c *Conn) recoverPump(pump string) {
	if r := recover(); r != nil {
		c.hub.logger.Error("websocket pump panicked",
			zap.String("pump", pump),
			zap.String("session_id", c.key.session),
			zap.Any("panic", r),
		)
	}
}

// writePump drains the send queue and pings on every heartbeat tick.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	defer c.recoverPump("write")

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug("websocket write failed",
					zap.String("session_id", c.key.session),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket heartbeat failed",
					zap.String("session_id", c.key.session),
					zap.Error(err),
				)
				return
			}
		}
	}
}

type inbound struct {
	Type string `json:"type"`
}

// readPump keeps the read deadline alive and answers keep-alive pings.
func (c *Conn) readPump() {
	defer c.close()
	defer c.recoverPump("read")

	pongWait := c.hub.cfg.pongWait()
	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed",
					zap.String("session_id", c.key.session),
					zap.Error(err),
				)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(data)
	}
}

// dispatch handles one inbound frame. A panicking handler drops the frame
// and leaves the connection open.
func (c *Conn) dispatch(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.hub.logger.Error("websocket message handler panicked",
				zap.String("session_id", c.key.session),
				zap.Any("panic", r),
			)
		}
	}()
	c.hub.handle(c, data)
}

func (c *Conn) handleInbound(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		pong, err := json.Marshal(model.Event{
			Type: model.EventPong,
			Data: model.PongEvent{Timestamp: time.Now().UTC()},
		})
		if err != nil {
			return
		}
		c.enqueue(pong)
	}
}
