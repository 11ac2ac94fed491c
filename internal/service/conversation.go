// Package service provides business logic for the roundtable API.
package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/store"
	"github.com/capitalize-ai/roundtable/pkg/logger"
	"github.com/capitalize-ai/roundtable/pkg/metrics"
)

const (
	maxTopicLength     = 500
	maxConversationCap = 100

	defaultPageSize = 20
	maxPageSize     = 100
)

// Broadcaster pushes realtime events to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, evt model.Event)
}

// ConversationService handles conversation operations.
type ConversationService struct {
	store       *store.Store
	broadcaster Broadcaster
	logger      *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st *store.Store, broadcaster Broadcaster, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:       st,
		broadcaster: broadcaster,
		logger:      log.Named("conversations"),
	}
}

// Create creates a new conversation owned by userID, or unowned when userID
// is empty.
func (s *ConversationService) Create(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	topic := strings.TrimSpace(req.Topic)

	v := &ValidationError{}
	switch n := utf8.RuneCountInString(topic); {
	case n == 0:
		v.add("topic", "is required")
	case n > maxTopicLength:
		v.add("topic", fmt.Sprintf("must be at most %d characters", maxTopicLength))
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if len(sessionID) > model.MaxSessionIDLength {
		v.add("session_id", fmt.Sprintf("must be at most %d characters", model.MaxSessionIDLength))
	}
	if req.MaxTurns != nil && (*req.MaxTurns < 1 || *req.MaxTurns > maxConversationCap) {
		v.add("max_turns", fmt.Sprintf("must be between 1 and %d", maxConversationCap))
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conv := &model.Conversation{
		Topic:     topic,
		SessionID: sessionID,
		MaxTurns:  req.MaxTurns,
	}
	if userID != "" {
		if err := s.store.EnsureUser(ctx, userID); err != nil {
			return nil, err
		}
		owner := userID
		conv.UserID = &owner
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	metrics.ConversationsTotal.Inc()

	s.broadcaster.Broadcast(ctx, model.Event{Type: model.EventNewConversation, Data: conv})

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)
	return conv, nil
}

// Get retrieves a conversation visible to userID.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	return conv, nil
}

// List returns a page of conversations visible to userID, newest first.
func (s *ConversationService) List(ctx context.Context, userID string, limit, offset int) (*model.ListConversationsResponse, error) {
	limit, offset = page(limit, offset)

	convs, total, err := s.store.ListConversations(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// End marks an active conversation completed. Ending an already ended
// conversation is a conflict, so the end event goes out once.
func (s *ConversationService) End(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	conv, transitioned, err := s.store.EndConversation(ctx, conversationID, model.StatusCompleted)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return nil, conflict("conversation %s already ended", conversationID)
	}

	s.broadcaster.Broadcast(ctx, model.Event{
		Type: model.EventEndConversation,
		Data: model.EndConversationEvent{
			ConversationID: conv.ID,
			Status:         conv.Status,
			EndedAt:        *conv.EndedAt,
		},
	})

	s.logger.Info("conversation ended",
		zap.String("conversation_id", conv.ID),
		zap.Int("turn_count", conv.TurnCount),
	)
	return conv, nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
