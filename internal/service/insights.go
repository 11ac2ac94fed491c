package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/llm"
	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/prompt"
	"github.com/capitalize-ai/roundtable/internal/store"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

const (
	insightsTemperature = 0.3
	insightsMaxTokens   = 600
)

// InsightsConfig tunes insight generation.
type InsightsConfig struct {
	// Model overrides the provider default.
	Model string
	// FallbackModel is tried first when Model is unavailable.
	FallbackModel string
	// Timeout bounds the completion call.
	Timeout time.Duration
}

// InsightsService summarises ended conversations.
type InsightsService struct {
	store  *store.Store
	llm    llm.Client
	cfg    InsightsConfig
	logger *logger.Logger
}

// NewInsightsService creates an insights service.
func NewInsightsService(st *store.Store, client llm.Client, cfg InsightsConfig, log *logger.Logger) *InsightsService {
	if cfg.Model == "" {
		cfg.Model = client.DefaultModel()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &InsightsService{
		store:  st,
		llm:    client,
		cfg:    cfg,
		logger: log.Named("insights"),
	}
}

// Generate asks the analyst model for the key takeaways of an ended
// conversation.
func (s *InsightsService) Generate(ctx context.Context, userID, conversationID string) (*model.InsightsResponse, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	if conv.IsActive {
		return nil, conflict("conversation %s has not ended", conversationID)
	}

	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	names, err := s.authorNames(ctx, msgs)
	if err != nil {
		return nil, err
	}
	turns := prompt.Transcript(msgs, names)
	if len(turns) == 0 {
		return nil, conflict("conversation %s has no messages to analyse", conversationID)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, usedFallback, err := llm.CompleteWithFallback(callCtx, s.llm, &llm.CompletionRequest{
		Model:        s.cfg.Model,
		SystemPrompt: prompt.AnalystSystemPrompt,
		Messages: []llm.ChatMessage{{
			Role:    llm.RoleUser,
			Content: prompt.BuildInsightsPrompt(conv.Topic, turns),
		}},
		Temperature: insightsTemperature,
		MaxTokens:   insightsMaxTokens,
	}, s.cfg.FallbackModel)
	if err != nil {
		s.logger.Warn("insight generation failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, &UpstreamError{Err: err}
	}

	insights := prompt.ParseInsights(resp.Content)
	s.logger.Info("insights generated",
		zap.String("conversation_id", conversationID),
		zap.String("model", resp.Model),
		zap.Bool("fallback", usedFallback),
		zap.Int("insights", len(insights)),
	)

	return &model.InsightsResponse{
		ConversationID: conversationID,
		Insights:       insights,
		Model:          resp.Model,
	}, nil
}

func (s *InsightsService) authorNames(ctx context.Context, msgs []model.Message) (map[string]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range msgs {
		if !seen[m.AgentPersonalityID] {
			seen[m.AgentPersonalityID] = true
			ids = append(ids, m.AgentPersonalityID)
		}
	}

	agents, err := s.store.GetPersonalities(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}
	return names, nil
}
