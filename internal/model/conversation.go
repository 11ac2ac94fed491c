// Package model defines data structures for the roundtable service.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusPaused    ConversationStatus = "paused"
	StatusCompleted ConversationStatus = "completed"
	StatusArchived  ConversationStatus = "archived"
)

// MaxSessionIDLength caps client-supplied session ids, both on conversations
// and on realtime connections.
const MaxSessionIDLength = 64

// Conversation is a topic discussed by a set of agents.
//
// EndedAt is set exactly when IsActive is false.
type Conversation struct {
	ID             string             `json:"id" gorm:"primaryKey;size:36"`
	Topic          string             `json:"topic" gorm:"type:text;not null"`
	SessionID      string             `json:"session_id" gorm:"index;size:64"`
	Status         ConversationStatus `json:"status" gorm:"size:20;not null"`
	TurnCount      int                `json:"turn_count" gorm:"not null"`
	MaxTurns       *int               `json:"max_turns,omitempty"`
	IsActive       bool               `json:"is_active" gorm:"index;not null"`
	AgentIDs       []string           `json:"agent_ids,omitempty" gorm:"serializer:json"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        *time.Time         `json:"ended_at,omitempty"`
	LastActivityAt time.Time          `json:"last_activity_at"`
	UserID         *string            `json:"user_id,omitempty" gorm:"index;size:128"`
}

// TableName pins the table name.
func (Conversation) TableName() string {
	return "conversations"
}

// OwnedBy reports whether userID may see the conversation. Unowned
// conversations are visible to everyone.
func (c *Conversation) OwnedBy(userID string) bool {
	return c.UserID == nil || *c.UserID == userID
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Topic     string `json:"topic"`
	SessionID string `json:"session_id,omitempty"`
	MaxTurns  *int   `json:"max_turns,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}

// OrchestrateRequest starts a multi-agent run on a conversation.
type OrchestrateRequest struct {
	AgentIDs  []string `json:"agent_ids"`
	TurnCount int      `json:"turn_count"`
}

// OrchestrateResponse acknowledges a started run.
type OrchestrateResponse struct {
	ConversationID string   `json:"conversation_id"`
	Status         string   `json:"status"`
	AgentIDs       []string `json:"agent_ids"`
	TurnCount      int      `json:"turn_count"`
}

// InsightsResponse carries the analyst's takeaways for an ended conversation.
type InsightsResponse struct {
	ConversationID string   `json:"conversation_id"`
	Insights       []string `json:"insights"`
	Model          string   `json:"model"`
}
