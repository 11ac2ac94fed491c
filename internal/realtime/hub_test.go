package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type recordingMirror struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (m *recordingMirror) PublishEvent(ctx context.Context, evt model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *recordingMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(Config{HeartbeatInterval: time.Second, WriteWait: time.Second}, logger.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := r.URL.Query().Get("client")
		if client == "" {
			client = "anon:test"
		}
		hub.ServeWS(w, r, client)
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt wireEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func readWelcome(t *testing.T, conn *websocket.Conn) model.ConnectionEstablished {
	t.Helper()
	evt := readEvent(t, conn)
	require.Equal(t, string(model.EventConnectionEstablished), evt.Type)

	var welcome model.ConnectionEstablished
	require.NoError(t, json.Unmarshal(evt.Data, &welcome))
	return welcome
}

func TestServeWSEchoesSessionID(t *testing.T) {
	_, srv := newTestHub(t)

	conn := dial(t, srv, "sessionId=resume-me&client=alice")
	welcome := readWelcome(t, conn)

	assert.Equal(t, "resume-me", welcome.SessionID)
	assert.Equal(t, "alice", welcome.ClientID)
}

func TestServeWSGeneratesSessionID(t *testing.T) {
	_, srv := newTestHub(t)

	conn := dial(t, srv, "")
	welcome := readWelcome(t, conn)

	_, err := uuid.Parse(welcome.SessionID)
	assert.NoError(t, err)
}

func TestServeWSRejectsOversizedSessionID(t *testing.T) {
	_, srv := newTestHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?sessionId=" + strings.Repeat("x", model.MaxSessionIDLength+1)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPingGetsPong(t *testing.T) {
	_, srv := newTestHub(t)

	conn := dial(t, srv, "")
	readWelcome(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	evt := readEvent(t, conn)
	assert.Equal(t, string(model.EventPong), evt.Type)
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub, srv := newTestHub(t)
	mirror := &recordingMirror{err: errors.New("journal offline")}
	hub.SetMirror(mirror)

	a := dial(t, srv, "client=a")
	b := dial(t, srv, "client=b")
	readWelcome(t, a)
	readWelcome(t, b)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(context.Background(), model.Event{
		Type: model.EventEndConversation,
		Data: model.EndConversationEvent{ConversationID: "c1", Status: model.StatusCompleted},
	})

	for _, conn := range []*websocket.Conn{a, b} {
		evt := readEvent(t, conn)
		assert.Equal(t, string(model.EventEndConversation), evt.Type)

		var data model.EndConversationEvent
		require.NoError(t, json.Unmarshal(evt.Data, &data))
		assert.Equal(t, "c1", data.ConversationID)
	}
	assert.Equal(t, 1, mirror.count(), "mirror errors do not stop delivery")
}

func TestReconnectReplacesOldConnection(t *testing.T) {
	hub, srv := newTestHub(t)

	first := dial(t, srv, "client=alice&sessionId=s1")
	readWelcome(t, first)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	second := dial(t, srv, "client=alice&sessionId=s1")
	welcome := readWelcome(t, second)
	assert.Equal(t, "s1", welcome.SessionID)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "replaced connection is closed")
	assert.Equal(t, 1, hub.Count())
}

func TestClientDisconnectRemovesEntry(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dial(t, srv, "")
	readWelcome(t, conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSweepRemovesConnectionsThatAreNotOpen(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dial(t, srv, "client=a")
	readWelcome(t, conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.mu.Lock()
	for _, c := range hub.conns {
		c.state.Store(stateClosing)
	}
	hub.mu.Unlock()

	assert.Equal(t, 1, hub.Sweep())
	assert.Zero(t, hub.Count())
}

func TestCloseRefusesNewConnections(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dial(t, srv, "")
	readWelcome(t, conn)
	hub.Close()
	assert.Zero(t, hub.Count())

	late := dial(t, srv, "")
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := late.ReadMessage()
	assert.Error(t, err)
}

func serveHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "anon:test")
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv
}

func TestSilentClientIsEvicted(t *testing.T) {
	hub := NewHub(Config{HeartbeatInterval: 100 * time.Millisecond, WriteWait: time.Second}, logger.NewNop())
	srv := serveHub(t, hub)

	// Never reading means pings are never answered with pongs.
	dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastSkipsOnlyTheFailingConnection(t *testing.T) {
	hub, srv := newTestHub(t)

	// A registered connection with no pumps and a full queue.
	stuck := make(chan *Conn, 1)
	stuckSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := newConn(hub, ws, connKey{client: "stuck", session: "s-stuck"})
		for i := 0; i < cap(c.send); i++ {
			c.send <- []byte(`{}`)
		}
		c.state.Store(stateOpen)
		hub.register(c)
		stuck <- c
	}))
	t.Cleanup(stuckSrv.Close)

	a := dial(t, srv, "client=a")
	readWelcome(t, a)
	dial(t, stuckSrv, "")
	blocked := <-stuck
	b := dial(t, srv, "client=b")
	readWelcome(t, b)
	require.Eventually(t, func() bool { return hub.Count() == 3 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(context.Background(), model.Event{
		Type: model.EventNewConversation,
		Data: map[string]string{"id": "c1"},
	})

	for _, conn := range []*websocket.Conn{a, b} {
		evt := readEvent(t, conn)
		assert.Equal(t, string(model.EventNewConversation), evt.Type)
	}
	assert.Equal(t, stateClosed, blocked.state.Load())
	assert.Equal(t, 2, hub.Count())
}

func TestHandlerPanicKeepsConnectionOpen(t *testing.T) {
	hub := NewHub(Config{HeartbeatInterval: time.Second, WriteWait: time.Second}, logger.NewNop())
	hub.handle = func(c *Conn, data []byte) {
		if string(data) == "boom" {
			panic("boom")
		}
		c.handleInbound(data)
	}
	srv := serveHub(t, hub)

	conn := dial(t, srv, "")
	readWelcome(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("boom")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	evt := readEvent(t, conn)
	assert.Equal(t, string(model.EventPong), evt.Type)
	assert.Equal(t, 1, hub.Count())
}
