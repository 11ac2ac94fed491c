package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/orchestrator"
	"github.com/capitalize-ai/roundtable/internal/store"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

// Responder produces one persisted agent reply in a conversation.
type Responder interface {
	Respond(ctx context.Context, conv *model.Conversation, agent *model.AgentPersonality) (*model.Message, error)
}

// MessageService handles message operations.
type MessageService struct {
	store     *store.Store
	responder Responder
	logger    *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(st *store.Store, responder Responder, log *logger.Logger) *MessageService {
	return &MessageService{
		store:     st,
		responder: responder,
		logger:    log.Named("messages"),
	}
}

// List returns all messages of a conversation visible to userID, oldest first.
func (s *MessageService) List(ctx context.Context, userID, conversationID string) (*model.ListMessagesResponse, error) {
	if _, err := s.conversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return &model.ListMessagesResponse{Messages: msgs, Total: len(msgs)}, nil
}

// Edit replaces the content of a message and flags it as edited.
func (s *MessageService) Edit(ctx context.Context, userID, conversationID, messageID string, req *model.EditMessageRequest) (*model.Message, error) {
	if _, err := s.conversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	v := &ValidationError{}
	validateContent(v, req.Content)
	if err := v.err(); err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, ErrNotFound
	}

	updated, err := s.store.UpdateMessageContent(ctx, messageID, strings.TrimSpace(req.Content))
	if err != nil {
		return nil, err
	}

	s.logger.Info("message edited",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", messageID),
	)
	return updated, nil
}

// GenerateResponse asks one agent for a reply on an active conversation and
// waits for it.
func (s *MessageService) GenerateResponse(ctx context.Context, userID, conversationID string, req *model.GenerateResponseRequest) (*model.Message, error) {
	if strings.TrimSpace(req.AgentID) == "" {
		return nil, invalid("agent_id", "is required")
	}

	conv, err := s.conversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, conflict("conversation %s has ended", conversationID)
	}

	agent, err := s.store.GetPersonality(ctx, req.AgentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalid("agent_id", "unknown agent")
	}
	if err != nil {
		return nil, err
	}
	if !agent.VisibleTo(userID) {
		return nil, ErrForbidden
	}
	if !agent.IsActive {
		return nil, invalid("agent_id", "agent is inactive")
	}

	msg, err := s.responder.Respond(ctx, conv, agent)
	if err != nil {
		if orchestrator.IsCompletionError(err) {
			s.logger.Warn("agent response failed",
				zap.String("conversation_id", conversationID),
				zap.String("agent_id", agent.ID),
				zap.Error(err),
			)
			return nil, &UpstreamError{Err: err}
		}
		return nil, err
	}

	if err := s.store.TouchConversation(ctx, conversationID); err != nil {
		s.logger.Warn("failed to touch conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
	return msg, nil
}

func (s *MessageService) conversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	return conv, nil
}
