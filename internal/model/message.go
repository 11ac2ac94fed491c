package model

import (
	"time"
)

// MessageType classifies a message.
type MessageType string

const (
	MessageStandard MessageType = "standard"
	MessageQuestion MessageType = "question"
	MessageResponse MessageType = "response"
	MessageSummary  MessageType = "summary"
	MessageSystem   MessageType = "system"
	MessageThinking MessageType = "thinking"
	MessageError    MessageType = "error"
)

// Message is one agent utterance in a conversation.
type Message struct {
	// Identity
	ID                 string `json:"id" gorm:"primaryKey;size:36"`
	ConversationID     string `json:"conversation_id" gorm:"index;size:36;not null"`
	AgentPersonalityID string `json:"agent_personality_id" gorm:"index;size:36;not null"`

	// Content
	Content     string      `json:"content" gorm:"type:text;not null"`
	MessageType MessageType `json:"message_type" gorm:"size:20;not null"`

	// LLM metadata, absent for hand-written messages
	TokenCount    *int           `json:"token_count,omitempty"`
	ProcessTimeMs *int64         `json:"process_time_ms,omitempty"`
	Model         *string        `json:"model,omitempty" gorm:"size:100"`
	Temperature   *string        `json:"temperature,omitempty" gorm:"size:8"`
	Metadata      map[string]any `json:"metadata,omitempty" gorm:"serializer:json"`

	IsEdited  bool      `json:"is_edited" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName pins the table name.
func (Message) TableName() string {
	return "messages"
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}

// GenerateResponseRequest asks one agent for a single reply.
type GenerateResponseRequest struct {
	AgentID string `json:"agent_id"`
}

// EditMessageRequest replaces a message's content.
type EditMessageRequest struct {
	Content string `json:"content"`
}
