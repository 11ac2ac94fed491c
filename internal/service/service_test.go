package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/roundtable/internal/config"
	"github.com/capitalize-ai/roundtable/internal/llm"
	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/orchestrator"
	"github.com/capitalize-ai/roundtable/internal/store"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "service.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Broadcast(_ context.Context, evt model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) ofType(t model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []*llm.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply, Model: req.Model, TokensIn: 10, TokensOut: 5}, nil
}

func (f *fakeLLM) Models(context.Context) ([]string, error) { return []string{"test-model"}, nil }
func (f *fakeLLM) Name() string                             { return "fake" }
func (f *fakeLLM) DefaultModel() string                     { return "test-model" }

func strPtr(s string) *string { return &s }

func createPersona(t *testing.T, st *store.Store, name string, owner *string) *model.AgentPersonality {
	t.Helper()
	p := &model.AgentPersonality{
		Name:        name,
		Model:       "test-model",
		Temperature: "0.5",
		IsActive:    true,
		UserID:      owner,
	}
	require.NoError(t, st.CreatePersonality(context.Background(), p))
	return p
}

func TestConversationCreate(t *testing.T) {
	st := newTestStore(t)
	rec := &recorder{}
	svc := NewConversationService(st, rec, logger.NewNop())
	ctx := context.Background()

	conv, err := svc.Create(ctx, "alice", &model.CreateConversationRequest{Topic: "  Is time real?  ", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "Is time real?", conv.Topic)
	assert.True(t, conv.IsActive)
	require.NotNil(t, conv.UserID)
	assert.Equal(t, "alice", *conv.UserID)
	assert.Len(t, rec.ofType(model.EventNewConversation), 1)

	assert.Equal(t, "s1", conv.SessionID)

	anon, err := svc.Create(ctx, "", &model.CreateConversationRequest{Topic: "open floor"})
	require.NoError(t, err)
	assert.Nil(t, anon.UserID)
}

func TestConversationCreateGeneratesSessionID(t *testing.T) {
	st := newTestStore(t)
	svc := NewConversationService(st, &recorder{}, logger.NewNop())
	ctx := context.Background()

	for _, sessionID := range []string{"", "   "} {
		conv, err := svc.Create(ctx, "alice", &model.CreateConversationRequest{Topic: "T", SessionID: sessionID})
		require.NoError(t, err)
		_, err = uuid.Parse(conv.SessionID)
		require.NoError(t, err, "generated session id %q", conv.SessionID)

		stored, err := st.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, conv.SessionID, stored.SessionID)
	}
}

func TestConversationCreateValidation(t *testing.T) {
	svc := NewConversationService(newTestStore(t), &recorder{}, logger.NewNop())
	zero := 0

	_, err := svc.Create(context.Background(), "alice", &model.CreateConversationRequest{
		Topic:     "   ",
		SessionID: strings.Repeat("s", model.MaxSessionIDLength+1),
		MaxTurns:  &zero,
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "topic")
	assert.Contains(t, verr.Fields, "session_id")
	assert.Contains(t, verr.Fields, "max_turns")
}

func TestConversationOwnership(t *testing.T) {
	st := newTestStore(t)
	svc := NewConversationService(st, &recorder{}, logger.NewNop())
	ctx := context.Background()

	mine, err := svc.Create(ctx, "alice", &model.CreateConversationRequest{Topic: "mine"})
	require.NoError(t, err)
	shared, err := svc.Create(ctx, "", &model.CreateConversationRequest{Topic: "shared"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "bob", mine.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, "bob", shared.ID)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, "bob", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := svc.List(ctx, "bob", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	assert.False(t, list.HasMore)
}

func TestConversationEndBroadcastsOnce(t *testing.T) {
	st := newTestStore(t)
	rec := &recorder{}
	svc := NewConversationService(st, rec, logger.NewNop())
	ctx := context.Background()

	conv, err := svc.Create(ctx, "alice", &model.CreateConversationRequest{Topic: "t"})
	require.NoError(t, err)

	ended, err := svc.End(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	assert.NotNil(t, ended.EndedAt)

	_, err = svc.End(ctx, "alice", conv.ID)
	assert.ErrorIs(t, err, ErrConflict)

	assert.Len(t, rec.ofType(model.EventEndConversation), 1)
}

func TestPersonalityCreateDefaults(t *testing.T) {
	svc := NewPersonalityService(newTestStore(t), "test-model", logger.NewNop())

	p, err := svc.Create(context.Background(), "alice", &model.PersonalityInput{Name: strPtr("Ada")})
	require.NoError(t, err)
	assert.Equal(t, "test-model", p.Model)
	assert.Equal(t, "0.7", p.Temperature)
	assert.Equal(t, model.StyleBalanced, p.ResponseStyle)
	assert.True(t, p.IsActive)
	assert.True(t, p.OwnedBy("alice"))
}

func TestPersonalityValidation(t *testing.T) {
	svc := NewPersonalityService(newTestStore(t), "test-model", logger.NewNop())

	_, err := svc.Create(context.Background(), "alice", &model.PersonalityInput{
		Temperature:   strPtr("1.5"),
		Color:         strPtr("blue"),
		ResponseStyle: strPtr("shouty"),
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"name", "temperature", "color", "response_style"} {
		assert.Contains(t, verr.Fields, field)
	}

	_, err = svc.Create(context.Background(), "", &model.PersonalityInput{Name: strPtr("Ada")})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSystemPersonasAreImmutable(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.SeedPersonalities(ctx, config.DefaultPersonas())
	require.NoError(t, err)

	svc := NewPersonalityService(st, "test-model", logger.NewNop())
	list, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, list.Personalities)
	system := list.Personalities[0]

	_, err = svc.Update(ctx, "alice", system.ID, &model.PersonalityInput{Name: strPtr("Renamed")})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, "alice", system.ID), ErrForbidden)
}

func TestPersonalityOwnerOnly(t *testing.T) {
	st := newTestStore(t)
	svc := NewPersonalityService(st, "test-model", logger.NewNop())
	ctx := context.Background()

	p, err := svc.Create(ctx, "alice", &model.PersonalityInput{Name: strPtr("Ada")})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "bob", p.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Update(ctx, "bob", p.ID, &model.PersonalityInput{Name: strPtr("Bob's")})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.Update(ctx, "alice", p.ID, &model.PersonalityInput{
		Title:    strPtr("Countess"),
		IsPublic: boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.Name)
	assert.Equal(t, "Countess", updated.Title)

	_, err = svc.Get(ctx, "bob", p.ID)
	assert.NoError(t, err, "public personas are readable")

	require.NoError(t, svc.Delete(ctx, "alice", p.ID))
	_, err = svc.Get(ctx, "alice", p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func boolPtr(b bool) *bool { return &b }

func TestMessageListAndEdit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	convs := NewConversationService(st, &recorder{}, logger.NewNop())
	svc := NewMessageService(st, nil, logger.NewNop())

	conv, err := convs.Create(ctx, "alice", &model.CreateConversationRequest{Topic: "t"})
	require.NoError(t, err)
	agent := createPersona(t, st, "Ada", nil)

	msg := &model.Message{ConversationID: conv.ID, AgentPersonalityID: agent.ID, Content: "first"}
	require.NoError(t, st.CreateMessage(ctx, msg))

	list, err := svc.List(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	_, err = svc.List(ctx, "bob", conv.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	edited, err := svc.Edit(ctx, "alice", conv.ID, msg.ID, &model.EditMessageRequest{Content: "second"})
	require.NoError(t, err)
	assert.Equal(t, "second", edited.Content)
	assert.True(t, edited.IsEdited)

	_, err = svc.Edit(ctx, "alice", conv.ID, msg.ID, &model.EditMessageRequest{Content: " "})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	other, err := convs.Create(ctx, "alice", &model.CreateConversationRequest{Topic: "other"})
	require.NoError(t, err)
	_, err = svc.Edit(ctx, "alice", other.ID, msg.ID, &model.EditMessageRequest{Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateResponse(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rec := &recorder{}
	client := &fakeLLM{reply: "A measured reply."}
	orch := orchestrator.New(st, client, rec, orchestrator.Config{}, logger.NewNop())
	svc := NewMessageService(st, orch, logger.NewNop())

	conv, err := NewConversationService(st, rec, logger.NewNop()).Create(ctx, "alice", &model.CreateConversationRequest{Topic: "t"})
	require.NoError(t, err)
	agent := createPersona(t, st, "Ada", nil)

	msg, err := svc.GenerateResponse(ctx, "alice", conv.ID, &model.GenerateResponseRequest{AgentID: agent.ID})
	require.NoError(t, err)
	assert.Equal(t, "A measured reply.", msg.Content)
	assert.Equal(t, model.MessageResponse, msg.MessageType)
	assert.Len(t, rec.ofType(model.EventNewMessage), 1)

	_, err = svc.GenerateResponse(ctx, "alice", conv.ID, &model.GenerateResponseRequest{AgentID: "nobody"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGenerateResponseUpstreamFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rec := &recorder{}
	client := &fakeLLM{err: errors.New("provider exploded")}
	orch := orchestrator.New(st, client, rec, orchestrator.Config{}, logger.NewNop())
	svc := NewMessageService(st, orch, logger.NewNop())

	conv, err := NewConversationService(st, rec, logger.NewNop()).Create(ctx, "alice", &model.CreateConversationRequest{Topic: "t"})
	require.NoError(t, err)
	agent := createPersona(t, st, "Ada", nil)

	_, err = svc.GenerateResponse(ctx, "alice", conv.ID, &model.GenerateResponseRequest{AgentID: agent.ID})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, upstream.Error(), "provider exploded")
}

func TestInsightsRequireEndedConversation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	convs := NewConversationService(st, &recorder{}, logger.NewNop())
	client := &fakeLLM{reply: "Intro line\n1. Time is contested.\n2) Memory shapes it.\nnot numbered"}
	svc := NewInsightsService(st, client, InsightsConfig{}, logger.NewNop())

	conv, err := convs.Create(ctx, "alice", &model.CreateConversationRequest{Topic: "Is time real?"})
	require.NoError(t, err)
	agent := createPersona(t, st, "Ada", nil)
	require.NoError(t, st.CreateMessage(ctx, &model.Message{ConversationID: conv.ID, AgentPersonalityID: agent.ID, Content: "Time is a measure."}))

	_, err = svc.Generate(ctx, "alice", conv.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = convs.End(ctx, "alice", conv.ID)
	require.NoError(t, err)

	resp, err := svc.Generate(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Time is contested.", "Memory shapes it."}, resp.Insights)
	assert.Equal(t, "test-model", resp.Model)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "test-model", req.Model)
	assert.Contains(t, req.Messages[0].Content, "Ada: Time is a measure.")
}

type fakeStarter struct {
	err  error
	reqs []orchestrator.Request
}

func (f *fakeStarter) Start(_ context.Context, req orchestrator.Request) (*orchestrator.Run, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Run{ConversationID: req.ConversationID}, nil
}

func TestOrchestrationStart(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	starter := &fakeStarter{}
	svc := NewOrchestrationService(st, starter, 10, logger.NewNop())

	conv, err := NewConversationService(st, &recorder{}, logger.NewNop()).Create(ctx, "alice", &model.CreateConversationRequest{Topic: "t"})
	require.NoError(t, err)
	a := createPersona(t, st, "A", nil)
	b := createPersona(t, st, "B", nil)

	resp, err := svc.Start(ctx, "alice", conv.ID, &model.OrchestrateRequest{AgentIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	assert.Equal(t, "started", resp.Status)
	assert.Equal(t, defaultTurnCount, resp.TurnCount)

	require.Len(t, starter.reqs, 1)
	assert.Equal(t, []string{a.ID, b.ID}, starter.reqs[0].AgentIDs)
	assert.Equal(t, "t", starter.reqs[0].Topic)

	stored, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, stored.AgentIDs)
}

func TestOrchestrationStartValidation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	svc := NewOrchestrationService(st, &fakeStarter{}, 5, logger.NewNop())

	conv, err := NewConversationService(st, &recorder{}, logger.NewNop()).Create(ctx, "alice", &model.CreateConversationRequest{Topic: "t"})
	require.NoError(t, err)
	a := createPersona(t, st, "A", nil)
	private := createPersona(t, st, "P", strPtr("carol"))

	tests := []struct {
		name string
		req  model.OrchestrateRequest
		want string
	}{
		{"duplicate agents", model.OrchestrateRequest{AgentIDs: []string{a.ID, a.ID}}, "agent_ids"},
		{"single agent", model.OrchestrateRequest{AgentIDs: []string{a.ID}}, "agent_ids"},
		{"negative turns", model.OrchestrateRequest{AgentIDs: []string{a.ID, "x"}, TurnCount: -1}, "turn_count"},
		{"over cap", model.OrchestrateRequest{AgentIDs: []string{a.ID, "x"}, TurnCount: 6}, "turn_count"},
		{"unknown agent", model.OrchestrateRequest{AgentIDs: []string{a.ID, "missing"}}, "agent_ids"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Start(ctx, "alice", conv.ID, &tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.want)
		})
	}

	_, err = svc.Start(ctx, "alice", conv.ID, &model.OrchestrateRequest{AgentIDs: []string{a.ID, private.ID}})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOrchestrationStartConflicts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	convs := NewConversationService(st, &recorder{}, logger.NewNop())
	a := createPersona(t, st, "A", nil)
	b := createPersona(t, st, "B", nil)
	req := &model.OrchestrateRequest{AgentIDs: []string{a.ID, b.ID}, TurnCount: 1}

	conv, err := convs.Create(ctx, "alice", &model.CreateConversationRequest{Topic: "t"})
	require.NoError(t, err)
	require.NoError(t, st.SetParticipants(ctx, conv.ID, []string{b.ID, a.ID}))

	busy := NewOrchestrationService(st, &fakeStarter{err: orchestrator.ErrAlreadyRunning}, 0, logger.NewNop())
	_, err = busy.Start(ctx, "alice", conv.ID, req)
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, stored.AgentIDs, "a rejected start keeps the running participants")

	closing := NewOrchestrationService(st, &fakeStarter{err: orchestrator.ErrShuttingDown}, 0, logger.NewNop())
	_, err = closing.Start(ctx, "alice", conv.ID, req)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = convs.End(ctx, "alice", conv.ID)
	require.NoError(t, err)
	_, err = NewOrchestrationService(st, &fakeStarter{}, 0, logger.NewNop()).Start(ctx, "alice", conv.ID, req)
	assert.ErrorIs(t, err, ErrConflict)
}
