package service

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/internal/store"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

// PersonalityService manages agent personas.
type PersonalityService struct {
	store        *store.Store
	defaultModel string
	logger       *logger.Logger
}

// NewPersonalityService creates a personality service. defaultModel is
// assigned to personas created without one.
func NewPersonalityService(st *store.Store, defaultModel string, log *logger.Logger) *PersonalityService {
	return &PersonalityService{
		store:        st,
		defaultModel: defaultModel,
		logger:       log.Named("personalities"),
	}
}

// List returns the personas visible to userID.
func (s *PersonalityService) List(ctx context.Context, userID string) (*model.ListPersonalitiesResponse, error) {
	ps, err := s.store.ListPersonalities(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []model.AgentPersonality{}
	}
	return &model.ListPersonalitiesResponse{Personalities: ps, Total: len(ps)}, nil
}

// Get returns a persona visible to userID.
func (s *PersonalityService) Get(ctx context.Context, userID, id string) (*model.AgentPersonality, error) {
	p, err := s.store.GetPersonality(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.VisibleTo(userID) {
		return nil, ErrForbidden
	}
	return p, nil
}

// Create stores a new persona owned by userID.
func (s *PersonalityService) Create(ctx context.Context, userID string, in *model.PersonalityInput) (*model.AgentPersonality, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if err := validatePersonality(in, true); err != nil {
		return nil, err
	}
	if err := s.store.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}

	owner := userID
	p := &model.AgentPersonality{
		ResponseStyle: model.StyleBalanced,
		Model:         s.defaultModel,
		Temperature:   strconv.FormatFloat(model.DefaultTemperature, 'f', -1, 64),
		IsActive:      true,
		UserID:        &owner,
	}
	apply(p, in)

	if err := s.store.CreatePersonality(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("personality created",
		zap.String("personality_id", p.ID),
		zap.String("name", p.Name),
		zap.String("user_id", userID),
	)
	return p, nil
}

// Update changes the fields present in in. Only the owner may update, and
// system personas are immutable.
func (s *PersonalityService) Update(ctx context.Context, userID, id string, in *model.PersonalityInput) (*model.AgentPersonality, error) {
	p, err := s.editable(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validatePersonality(in, false); err != nil {
		return nil, err
	}

	apply(p, in)
	if err := s.store.UpdatePersonality(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("personality updated", zap.String("personality_id", id))
	return p, nil
}

// Delete removes a persona owned by userID.
func (s *PersonalityService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.editable(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeletePersonality(ctx, id); err != nil {
		return err
	}

	s.logger.Info("personality deleted", zap.String("personality_id", id))
	return nil
}

func (s *PersonalityService) editable(ctx context.Context, userID, id string) (*model.AgentPersonality, error) {
	p, err := s.store.GetPersonality(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsSystem() || !p.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	return p, nil
}

func apply(p *model.AgentPersonality, in *model.PersonalityInput) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&p.Name, in.Name)
	set(&p.Title, in.Title)
	set(&p.Description, in.Description)
	set(&p.SystemPrompt, in.SystemPrompt)
	set(&p.Archetype, in.Archetype)
	set(&p.VoiceType, in.VoiceType)
	set(&p.SpeechPattern, in.SpeechPattern)
	set(&p.Perspective, in.Perspective)
	set(&p.ResponseStyle, in.ResponseStyle)
	set(&p.Temperament, in.Temperament)
	set(&p.Color, in.Color)
	set(&p.Avatar, in.Avatar)
	set(&p.Model, in.Model)
	set(&p.Temperature, in.Temperature)

	if in.PersonalityTraits != nil {
		p.PersonalityTraits = in.PersonalityTraits
	}
	if in.Quirks != nil {
		p.Quirks = in.Quirks
	}
	if in.KnowledgeDomains != nil {
		p.KnowledgeDomains = in.KnowledgeDomains
	}
	if in.Specialties != nil {
		p.Specialties = in.Specialties
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.IsPublic != nil {
		p.IsPublic = *in.IsPublic
	}
}
