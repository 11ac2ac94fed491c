package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/roundtable/internal/model"
)

// CreateConversation inserts conv, assigning an ID and start time if unset.
func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	now := time.Now().UTC()
	if conv.ID == "" {
		conv.ID = newID()
	}
	if conv.StartedAt.IsZero() {
		conv.StartedAt = now
	}
	conv.LastActivityAt = conv.StartedAt
	if conv.Status == "" {
		conv.Status = model.StatusActive
	}
	conv.IsActive = conv.Status == model.StatusActive
	if !conv.IsActive && conv.EndedAt == nil {
		conv.EndedAt = &now
	}

	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation loads a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "conversation", id)
	}
	return &conv, nil
}

// ListConversations returns conversations owned by userID plus unowned
// ones, newest first.
func (s *Store) ListConversations(ctx context.Context, userID string, limit, offset int) ([]model.Conversation, int, error) {
	visible := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("user_id = ? OR user_id IS NULL", userID)
	}

	var total int64
	if err := visible().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	convs := make([]model.Conversation, 0, limit)
	err := visible().Order("started_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&convs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, int(total), nil
}

// SetParticipants records the agents taking part in the latest run.
func (s *Store) SetParticipants(ctx context.Context, id string, agentIDs []string) error {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.AgentIDs = agentIDs
	if err := s.db.WithContext(ctx).Model(conv).Select("agent_ids").Updates(conv).Error; err != nil {
		return fmt.Errorf("failed to set participants on %s: %w", id, err)
	}
	return nil
}

// TouchConversation bumps the last-activity timestamp.
func (s *Store) TouchConversation(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("last_activity_at", time.Now().UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to touch conversation %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordTurn increments the turn counter after a full pass over the agents.
func (s *Store) RecordTurn(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"turn_count":       gorm.Expr("turn_count + ?", 1),
			"last_activity_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record turn on %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// EndConversation marks an active conversation ended with the given status.
// The returned bool is true only for the call that performed the
// transition, so callers can broadcast the end exactly once.
func (s *Store) EndConversation(ctx context.Context, id string, status model.ConversationStatus) (*model.Conversation, bool, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND is_active = ?", id, true).
		UpdateColumns(map[string]any{
			"is_active":        false,
			"status":           status,
			"ended_at":         now,
			"last_activity_at": now,
		})
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to end conversation %s: %w", id, res.Error)
	}

	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return conv, res.RowsAffected == 1, nil
}
