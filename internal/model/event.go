package model

import (
	"time"
)

// EventType names a realtime event pushed to WebSocket clients.
type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventNewMessage            EventType = "new_message"
	EventNewConversation       EventType = "new_conversation"
	EventEndConversation       EventType = "end_conversation"
	EventOrchestrationError    EventType = "orchestration_error"
	EventPong                  EventType = "pong"
)

// Event is the envelope written to WebSocket clients: {"type": ..., "data": ...}.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// ConnectionEstablished is sent first on every new connection.
type ConnectionEstablished struct {
	SessionID string    `json:"session_id"`
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageEvent carries a persisted message plus denormalized agent fields.
type NewMessageEvent struct {
	Message    Message `json:"message"`
	AgentName  string  `json:"agent_name"`
	AgentColor string  `json:"agent_color,omitempty"`
}

// EndConversationEvent is broadcast once when a conversation ends.
type EndConversationEvent struct {
	ConversationID string             `json:"conversation_id"`
	Status         ConversationStatus `json:"status"`
	EndedAt        time.Time          `json:"ended_at"`
}

// OrchestrationErrorEvent reports a run that stopped on a provider failure.
type OrchestrationErrorEvent struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	Reason         string `json:"reason"`
}

// PongEvent acknowledges a client keep-alive ping.
type PongEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
