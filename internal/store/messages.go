package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/roundtable/internal/model"
)

// CreateMessage inserts msg after checking its conversation and
// personality exist.
func (s *Store) CreateMessage(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.MessageType == "" {
		msg.MessageType = model.MessageStandard
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &model.Conversation{}, msg.ConversationID); err != nil {
			return notFound(err, "conversation", msg.ConversationID)
		}
		if err := exists(tx, &model.AgentPersonality{}, msg.AgentPersonalityID); err != nil {
			return notFound(err, "personality", msg.AgentPersonalityID)
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func exists(tx *gorm.DB, table any, id string) error {
	var n int64
	if err := tx.Model(table).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetMessage loads a message by ID.
func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "message", id)
	}
	return &msg, nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for %s: %w", conversationID, err)
	}
	return msgs, nil
}

// UpdateMessageContent replaces a message's content and flags it edited.
func (s *Store) UpdateMessageContent(ctx context.Context, id, content string) (*model.Message, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"content": content, "is_edited": true})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update message %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return s.GetMessage(ctx, id)
}
