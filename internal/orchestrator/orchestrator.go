// Package orchestrator runs multi-agent conversations in the background.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/llm"
	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/prompt"
	"github.com/capitalize-ai/roundtable/pkg/logger"
	"github.com/capitalize-ai/roundtable/pkg/metrics"
)

var (
	ErrAlreadyRunning       = errors.New("orchestration already running for conversation")
	ErrTooFewAgents         = errors.New("orchestration requires at least two agents")
	ErrInvalidTurnCount     = errors.New("turn count must be positive")
	ErrConversationInactive = errors.New("conversation is not active")
	ErrShuttingDown         = errors.New("orchestrator is shutting down")
)

// Store is the persistence the orchestrator needs.
type Store interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetPersonalities(ctx context.Context, ids []string) ([]model.AgentPersonality, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	CreateMessage(ctx context.Context, msg *model.Message) error
	RecordTurn(ctx context.Context, id string) error
	EndConversation(ctx context.Context, id string, status model.ConversationStatus) (*model.Conversation, bool, error)
}

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, evt model.Event)
}

// Config holds orchestration settings.
type Config struct {
	// TurnDelay paces consecutive agent calls.
	TurnDelay time.Duration
	// MaxTurns caps the turn count of any single run. Zero means no cap.
	MaxTurns int
	// CompletionTimeout bounds each completion call.
	CompletionTimeout time.Duration
	// FallbackModel is tried first when a persona's model is unavailable.
	FallbackModel string
	// MaxTokens caps each reply.
	MaxTokens int
}

// Request describes a run.
type Request struct {
	ConversationID string
	Topic          string
	AgentIDs       []string
	TurnCount      int
}

// Orchestrator supervises background runs, at most one per conversation.
type Orchestrator struct {
	store       Store
	llm         llm.Client
	broadcaster Broadcaster
	cfg         Config
	logger      *logger.Logger
	tracer      trace.Tracer
	sleep       func(ctx context.Context, d time.Duration) error

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*Run
	closed bool
}

// New creates an orchestrator.
func New(store Store, client llm.Client, broadcaster Broadcaster, cfg Config, log *logger.Logger) *Orchestrator {
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:       store,
		llm:         client,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      log.Named("orchestrator"),
		tracer:      otel.Tracer("github.com/capitalize-ai/roundtable/internal/orchestrator"),
		sleep:       sleepCtx,
		baseCtx:     ctx,
		cancel:      cancel,
		runs:        make(map[string]*Run),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start validates req and launches the run in the background. The caller's
// context only scopes validation; the run outlives the request.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Run, error) {
	if len(req.AgentIDs) < 2 {
		return nil, ErrTooFewAgents
	}
	if req.TurnCount < 1 {
		return nil, ErrInvalidTurnCount
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, ok := o.runs[req.ConversationID]; ok {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	run := newRun(req.ConversationID)
	o.runs[req.ConversationID] = run
	o.wg.Add(1)
	o.mu.Unlock()

	go o.execute(run, req)
	return run, nil
}

// Running reports whether a run is in progress for the conversation.
func (o *Orchestrator) Running(conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[conversationID]
	return ok
}

// Shutdown cancels every run and waits for them to finish or ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) execute(run *Run, req Request) {
	log := o.logger.WithConversation(req.ConversationID)
	metrics.OrchestrationRunsActive.Inc()

	ctx, span := o.tracer.Start(o.baseCtx, "orchestration.run", trace.WithAttributes(
		attribute.String("conversation.id", req.ConversationID),
		attribute.Int("orchestration.turns", req.TurnCount),
		attribute.StringSlice("orchestration.agents", req.AgentIDs),
	))

	outcome, err := o.safeLoop(ctx, run, req)
	run.finish(outcome, err)

	span.SetAttributes(
		attribute.String("orchestration.outcome", string(outcome)),
		attribute.Int("orchestration.messages", run.Messages()),
	)
	if outcome == OutcomeFailed {
		span.RecordError(err)
		span.SetStatus(codes.Error, "orchestration failed")
	}
	span.End()

	metrics.OrchestrationRunsActive.Dec()
	metrics.RecordRunFinished(string(outcome))

	fields := []zap.Field{
		zap.String("outcome", string(outcome)),
		zap.Int("messages", run.Messages()),
		zap.Duration("duration", time.Since(run.StartedAt)),
	}
	switch outcome {
	case OutcomeCompleted:
		log.Info("orchestration finished", fields...)
	case OutcomeFailed:
		log.Error("orchestration failed", append(fields, zap.Error(err))...)
	default:
		log.Warn("orchestration ended early", append(fields, zap.Error(err))...)
	}

	o.mu.Lock()
	delete(o.runs, req.ConversationID)
	o.mu.Unlock()
	close(run.done)
	o.wg.Done()
}

func (o *Orchestrator) safeLoop(ctx context.Context, run *Run, req Request) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestration panicked",
				zap.String("conversation_id", req.ConversationID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			outcome, err = OutcomeFailed, fmt.Errorf("orchestration panicked: %v", r)
		}
	}()
	return o.loop(ctx, run, req)
}

// completionError marks a provider failure, which is reported to clients
// as an error message.
type completionError struct {
	err error
}

func (e *completionError) Error() string { return e.err.Error() }
func (e *completionError) Unwrap() error { return e.err }

// IsCompletionError reports whether err came from the completion provider.
func IsCompletionError(err error) bool {
	var cerr *completionError
	return errors.As(err, &cerr)
}

// Respond runs a single turn for agent outside any run and returns the
// persisted message.
func (o *Orchestrator) Respond(ctx context.Context, conv *model.Conversation, agent *model.AgentPersonality) (*model.Message, error) {
	names := map[string]string{agent.ID: agent.Name}
	return o.speak(ctx, conv.ID, conv.Topic, agent, conv.TurnCount, names)
}

func (o *Orchestrator) loop(ctx context.Context, run *Run, req Request) (Outcome, error) {
	conv, err := o.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return OutcomeAborted, err
	}
	if !conv.IsActive {
		return OutcomeAborted, ErrConversationInactive
	}

	agents, err := o.store.GetPersonalities(ctx, req.AgentIDs)
	if err != nil {
		return OutcomeAborted, err
	}
	if len(agents) < 2 {
		return OutcomeAborted, fmt.Errorf("%w: %d of %d resolved", ErrTooFewAgents, len(agents), len(req.AgentIDs))
	}

	names := make(map[string]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}

	topic := req.Topic
	if strings.TrimSpace(topic) == "" {
		topic = conv.Topic
	}

	turns := o.turnLimit(conv, req.TurnCount)
	for turn := 0; turn < turns; turn++ {
		if stopped, err := o.stopped(ctx, conv.ID); stopped {
			return OutcomeStopped, err
		}

		for i := range agents {
			if _, err := o.speak(ctx, conv.ID, topic, &agents[i], turn, names); err != nil {
				if ctx.Err() != nil {
					return OutcomeStopped, ctx.Err()
				}
				var cerr *completionError
				if errors.As(err, &cerr) {
					o.reportFailure(ctx, conv.ID, &agents[i], turn, cerr.err)
				}
				return OutcomeFailed, err
			}
			run.addMessage()

			last := turn == turns-1 && i == len(agents)-1
			if !last {
				if err := o.sleep(ctx, o.cfg.TurnDelay); err != nil {
					return OutcomeStopped, err
				}
			}
			if stopped, err := o.stopped(ctx, conv.ID); stopped {
				return OutcomeStopped, err
			}
		}

		if err := o.store.RecordTurn(ctx, conv.ID); err != nil {
			o.logger.Warn("failed to record turn",
				zap.String("conversation_id", conv.ID),
				zap.Int("turn", turn+1),
				zap.Error(err),
			)
		}
	}

	ended, transitioned, err := o.store.EndConversation(ctx, conv.ID, model.StatusCompleted)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("end conversation: %w", err)
	}
	if transitioned {
		o.broadcaster.Broadcast(ctx, model.Event{
			Type: model.EventEndConversation,
			Data: endEvent(ended),
		})
	}
	return OutcomeCompleted, nil
}

func endEvent(conv *model.Conversation) model.EndConversationEvent {
	evt := model.EndConversationEvent{ConversationID: conv.ID, Status: conv.Status}
	if conv.EndedAt != nil {
		evt.EndedAt = *conv.EndedAt
	}
	return evt
}

// turnLimit applies the conversation's remaining turn budget and the
// global cap to the requested count.
func (o *Orchestrator) turnLimit(conv *model.Conversation, requested int) int {
	n := requested
	if conv.MaxTurns != nil && *conv.MaxTurns > 0 {
		if remaining := *conv.MaxTurns - conv.TurnCount; remaining < n {
			n = remaining
		}
	}
	if o.cfg.MaxTurns > 0 && n > o.cfg.MaxTurns {
		n = o.cfg.MaxTurns
	}
	if n < 0 {
		n = 0
	}
	return n
}

// stopped reports whether the run must end because the conversation was
// ended elsewhere or the orchestrator is shutting down.
func (o *Orchestrator) stopped(ctx context.Context, conversationID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return true, err
	}
	if !conv.IsActive {
		return true, ErrConversationInactive
	}
	return false, nil
}

func (o *Orchestrator) speak(ctx context.Context, conversationID, topic string, agent *model.AgentPersonality, turn int, names map[string]string) (*model.Message, error) {
	ctx, span := o.tracer.Start(ctx, "orchestration.agent_turn", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("agent.id", agent.ID),
		attribute.String("agent.model", agent.Model),
		attribute.Int("orchestration.turn", turn+1),
	))
	defer span.End()

	history, err := o.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if err := o.resolveNames(ctx, history, names); err != nil {
		return nil, err
	}

	temperature := agent.TemperatureValue()
	req := &llm.CompletionRequest{
		Model:        agent.Model,
		SystemPrompt: agent.SystemPrompt,
		Messages: []llm.ChatMessage{{
			Role:    llm.RoleUser,
			Content: prompt.Build(agent, topic, prompt.Transcript(history, names)),
		}},
		Temperature: temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CompletionTimeout)
	start := time.Now()
	resp, usedFallback, err := llm.CompleteWithFallback(callCtx, o.llm, req, o.cfg.FallbackModel)
	elapsed := time.Since(start).Milliseconds()
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("completion timed out after %s: %w", o.cfg.CompletionTimeout, err)
		}
		return nil, &completionError{err: err}
	}
	span.SetAttributes(
		attribute.String("llm.model", resp.Model),
		attribute.Bool("llm.fallback", usedFallback),
		attribute.Int("llm.tokens", resp.TotalTokens()),
	)

	usedModel := resp.Model
	if usedModel == "" {
		usedModel = agent.Model
	}
	tokens := resp.TotalTokens()
	temp := strconv.FormatFloat(temperature, 'f', -1, 64)

	msg := &model.Message{
		ConversationID:     conversationID,
		AgentPersonalityID: agent.ID,
		Content:            strings.TrimSpace(resp.Content),
		MessageType:        model.MessageResponse,
		TokenCount:         &tokens,
		ProcessTimeMs:      &elapsed,
		Model:              &usedModel,
		Temperature:        &temp,
		Metadata: map[string]any{
			"turn":       turn + 1,
			"fallback":   usedFallback,
			"tokens_in":  resp.TokensIn,
			"tokens_out": resp.TokensOut,
		},
	}
	if err := o.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.MessageType)).Inc()

	o.broadcaster.Broadcast(ctx, model.Event{
		Type: model.EventNewMessage,
		Data: model.NewMessageEvent{Message: *msg, AgentName: agent.Name, AgentColor: agent.Color},
	})
	return msg, nil
}

// resolveNames fills names for history authors outside the current run.
func (o *Orchestrator) resolveNames(ctx context.Context, history []model.Message, names map[string]string) error {
	var missing []string
	seen := map[string]bool{}
	for _, m := range history {
		id := m.AgentPersonalityID
		if _, ok := names[id]; !ok && !seen[id] {
			seen[id] = true
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	found, err := o.store.GetPersonalities(ctx, missing)
	if err != nil {
		return fmt.Errorf("resolve transcript names: %w", err)
	}
	for _, p := range found {
		names[p.ID] = p.Name
	}
	return nil
}

// reportFailure persists and broadcasts an error message for agent so
// clients see why the conversation stalled.
func (o *Orchestrator) reportFailure(ctx context.Context, conversationID string, agent *model.AgentPersonality, turn int, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	msg := &model.Message{
		ConversationID:     conversationID,
		AgentPersonalityID: agent.ID,
		Content:            fmt.Sprintf("%s could not respond, so the discussion stopped here.", agent.Name),
		MessageType:        model.MessageError,
		Metadata: map[string]any{
			"turn":  turn + 1,
			"error": cause.Error(),
		},
	}
	if err := o.store.CreateMessage(ctx, msg); err != nil {
		o.logger.Error("failed to persist error message",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	} else {
		metrics.MessagesTotal.WithLabelValues(string(msg.MessageType)).Inc()
		o.broadcaster.Broadcast(ctx, model.Event{
			Type: model.EventNewMessage,
			Data: model.NewMessageEvent{Message: *msg, AgentName: agent.Name, AgentColor: agent.Color},
		})
	}

	o.broadcaster.Broadcast(ctx, model.Event{
		Type: model.EventOrchestrationError,
		Data: model.OrchestrationErrorEvent{
			ConversationID: conversationID,
			AgentID:        agent.ID,
			Reason:         cause.Error(),
		},
	})
}
