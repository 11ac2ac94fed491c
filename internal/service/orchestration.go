package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/orchestrator"
	"github.com/capitalize-ai/roundtable/internal/store"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

const (
	defaultTurnCount = 3
	maxAgentsPerRun  = 8
)

// Starter launches background orchestration runs.
type Starter interface {
	Start(ctx context.Context, req orchestrator.Request) (*orchestrator.Run, error)
}

// OrchestrationService validates and starts multi-agent runs.
type OrchestrationService struct {
	store        *store.Store
	orchestrator Starter
	maxTurns     int
	logger       *logger.Logger
}

// NewOrchestrationService creates an orchestration service. maxTurns caps
// the turn count of a single request; zero means no cap.
func NewOrchestrationService(st *store.Store, orch Starter, maxTurns int, log *logger.Logger) *OrchestrationService {
	return &OrchestrationService{
		store:        st,
		orchestrator: orch,
		maxTurns:     maxTurns,
		logger:       log.Named("orchestration"),
	}
}

// Start records the participants of a conversation and launches a run. It
// returns as soon as the run is scheduled.
func (s *OrchestrationService) Start(ctx context.Context, userID, conversationID string, req *model.OrchestrateRequest) (*model.OrchestrateResponse, error) {
	agentIDs, turns, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	if !conv.IsActive {
		return nil, conflict("conversation %s has ended", conversationID)
	}

	agents, err := s.store.GetPersonalities(ctx, agentIDs)
	if err != nil {
		return nil, err
	}
	if err := checkAgents(agentIDs, agents, userID); err != nil {
		return nil, err
	}

	_, err = s.orchestrator.Start(ctx, orchestrator.Request{
		ConversationID: conversationID,
		Topic:          conv.Topic,
		AgentIDs:       agentIDs,
		TurnCount:      turns,
	})
	switch {
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		return nil, conflict("conversation %s already has a running orchestration", conversationID)
	case errors.Is(err, orchestrator.ErrShuttingDown):
		return nil, ErrUnavailable
	case err != nil:
		return nil, err
	}

	// Participants are recorded only for runs that actually started.
	if err := s.store.SetParticipants(ctx, conversationID, agentIDs); err != nil {
		s.logger.Warn("failed to record participants",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	s.logger.Info("orchestration started",
		zap.String("conversation_id", conversationID),
		zap.Strings("agent_ids", agentIDs),
		zap.Int("turn_count", turns),
	)

	return &model.OrchestrateResponse{
		ConversationID: conversationID,
		Status:         "started",
		AgentIDs:       agentIDs,
		TurnCount:      turns,
	}, nil
}

func (s *OrchestrationService) validate(req *model.OrchestrateRequest) ([]string, int, error) {
	v := &ValidationError{}

	seen := make(map[string]bool, len(req.AgentIDs))
	ids := make([]string, 0, len(req.AgentIDs))
	for _, id := range req.AgentIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			v.add("agent_ids", "entries cannot be empty")
			continue
		}
		if seen[id] {
			v.add("agent_ids", "must not contain duplicates")
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	switch {
	case len(ids) < 2:
		v.add("agent_ids", "at least two distinct agents are required")
	case len(ids) > maxAgentsPerRun:
		v.add("agent_ids", fmt.Sprintf("at most %d agents are allowed", maxAgentsPerRun))
	}

	turns := req.TurnCount
	if turns == 0 {
		turns = defaultTurnCount
	}
	if turns < 1 {
		v.add("turn_count", "must be a positive integer")
	} else if s.maxTurns > 0 && turns > s.maxTurns {
		v.add("turn_count", fmt.Sprintf("must be at most %d", s.maxTurns))
	}

	return ids, turns, v.err()
}

// checkAgents requires every requested agent to exist, be usable by userID
// and be active.
func checkAgents(ids []string, agents []model.AgentPersonality, userID string) error {
	byID := make(map[string]*model.AgentPersonality, len(agents))
	for i := range agents {
		byID[agents[i].ID] = &agents[i]
	}

	v := &ValidationError{}
	for _, id := range ids {
		a, ok := byID[id]
		switch {
		case !ok:
			v.add("agent_ids", "unknown agent "+id)
		case !a.VisibleTo(userID):
			return ErrForbidden
		case !a.IsActive:
			v.add("agent_ids", "agent "+id+" is inactive")
		}
	}
	return v.err()
}
