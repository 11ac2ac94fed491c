package model

import (
	"strconv"
	"strings"
	"time"
)

// Response styles understood by the prompt builder.
const (
	StyleBrief       = "brief"
	StyleDetailed    = "detailed"
	StylePoetic      = "poetic"
	StyleTechnical   = "technical"
	StyleQuestioning = "questioning"
	StyleBalanced    = "balanced"
)

// ResponseStyles lists the accepted response style values.
var ResponseStyles = []string{
	StyleBrief, StyleDetailed, StylePoetic, StyleTechnical, StyleQuestioning, StyleBalanced,
}

// DefaultTemperature is used when a persona's temperature is unusable.
const DefaultTemperature = 0.7

// AgentPersonality is a named persona backed by a model.
// A nil UserID marks a system persona, which cannot be edited or deleted.
type AgentPersonality struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	Name              string    `json:"name" gorm:"size:100;not null"`
	Title             string    `json:"title,omitempty" gorm:"size:200"`
	Description       string    `json:"description,omitempty" gorm:"type:text"`
	SystemPrompt      string    `json:"system_prompt,omitempty" gorm:"type:text"`
	Archetype         string    `json:"archetype,omitempty" gorm:"size:100"`
	VoiceType         string    `json:"voice_type,omitempty" gorm:"size:100"`
	SpeechPattern     string    `json:"speech_pattern,omitempty" gorm:"type:text"`
	PersonalityTraits []string  `json:"personality_traits,omitempty" gorm:"serializer:json"`
	Quirks            []string  `json:"quirks,omitempty" gorm:"serializer:json"`
	KnowledgeDomains  []string  `json:"knowledge_domains,omitempty" gorm:"serializer:json"`
	Specialties       []string  `json:"specialties,omitempty" gorm:"serializer:json"`
	Perspective       string    `json:"perspective,omitempty" gorm:"type:text"`
	ResponseStyle     string    `json:"response_style,omitempty" gorm:"size:20"`
	Temperament       string    `json:"temperament,omitempty" gorm:"size:100"`
	Color             string    `json:"color,omitempty" gorm:"size:7"`
	Avatar            string    `json:"avatar,omitempty" gorm:"size:255"`
	Model             string    `json:"model" gorm:"size:100;not null"`
	Temperature       string    `json:"temperature" gorm:"size:8;not null"`
	IsActive          bool      `json:"is_active" gorm:"not null"`
	IsPublic          bool      `json:"is_public" gorm:"not null"`
	UserID            *string   `json:"user_id,omitempty" gorm:"index;size:128"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName pins the table name.
func (AgentPersonality) TableName() string {
	return "agent_personalities"
}

// IsSystem reports whether the persona ships with the service.
func (p *AgentPersonality) IsSystem() bool {
	return p.UserID == nil
}

// OwnedBy reports whether userID created the persona.
func (p *AgentPersonality) OwnedBy(userID string) bool {
	return p.UserID != nil && *p.UserID == userID
}

// VisibleTo reports whether userID may read or use the persona.
func (p *AgentPersonality) VisibleTo(userID string) bool {
	return p.IsSystem() || p.IsPublic || p.OwnedBy(userID)
}

// TemperatureValue parses Temperature, falling back to DefaultTemperature
// unless it holds a number in [0, 1].
func (p *AgentPersonality) TemperatureValue() float64 {
	t, err := strconv.ParseFloat(strings.TrimSpace(p.Temperature), 64)
	if err != nil || t < 0 || t > 1 {
		return DefaultTemperature
	}
	return t
}

// PersonalityInput is the body of create and update requests. Pointer
// fields distinguish "not sent" from "cleared" on update.
type PersonalityInput struct {
	Name              *string  `json:"name,omitempty"`
	Title             *string  `json:"title,omitempty"`
	Description       *string  `json:"description,omitempty"`
	SystemPrompt      *string  `json:"system_prompt,omitempty"`
	Archetype         *string  `json:"archetype,omitempty"`
	VoiceType         *string  `json:"voice_type,omitempty"`
	SpeechPattern     *string  `json:"speech_pattern,omitempty"`
	PersonalityTraits []string `json:"personality_traits,omitempty"`
	Quirks            []string `json:"quirks,omitempty"`
	KnowledgeDomains  []string `json:"knowledge_domains,omitempty"`
	Specialties       []string `json:"specialties,omitempty"`
	Perspective       *string  `json:"perspective,omitempty"`
	ResponseStyle     *string  `json:"response_style,omitempty"`
	Temperament       *string  `json:"temperament,omitempty"`
	Color             *string  `json:"color,omitempty"`
	Avatar            *string  `json:"avatar,omitempty"`
	Model             *string  `json:"model,omitempty"`
	Temperature       *string  `json:"temperature,omitempty"`
	IsActive          *bool    `json:"is_active,omitempty"`
	IsPublic          *bool    `json:"is_public,omitempty"`
}

// ListPersonalitiesResponse is the response for listing personalities.
type ListPersonalitiesResponse struct {
	Personalities []AgentPersonality `json:"personalities"`
	Total         int                `json:"total"`
}
