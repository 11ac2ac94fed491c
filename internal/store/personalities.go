package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/roundtable/internal/config"
	"github.com/capitalize-ai/roundtable/internal/model"
)

// CreatePersonality inserts p, assigning an ID if unset.
func (s *Store) CreatePersonality(ctx context.Context, p *model.AgentPersonality) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create personality %q: %w", p.Name, err)
	}
	return nil
}

// GetPersonality loads a personality by ID.
func (s *Store) GetPersonality(ctx context.Context, id string) (*model.AgentPersonality, error) {
	var p model.AgentPersonality
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "personality", id)
	}
	return &p, nil
}

// GetPersonalities loads the given IDs preserving the requested order.
// Unknown IDs are skipped.
func (s *Store) GetPersonalities(ctx context.Context, ids []string) ([]model.AgentPersonality, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []model.AgentPersonality
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load personalities: %w", err)
	}

	byID := make(map[string]model.AgentPersonality, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	out := make([]model.AgentPersonality, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListPersonalities returns the personas visible to userID: system ones,
// the user's own and any public persona.
func (s *Store) ListPersonalities(ctx context.Context, userID string) ([]model.AgentPersonality, error) {
	var out []model.AgentPersonality
	err := s.db.WithContext(ctx).
		Where("user_id IS NULL OR user_id = ? OR is_public = ?", userID, true).
		Order("created_at ASC").Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list personalities: %w", err)
	}
	return out, nil
}

// UpdatePersonality writes every column of p.
func (s *Store) UpdatePersonality(ctx context.Context, p *model.AgentPersonality) error {
	res := s.db.WithContext(ctx).Model(p).Select("*").Omit("id", "created_at", "user_id").Updates(p)
	if res.Error != nil {
		return fmt.Errorf("failed to update personality %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("personality %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// DeletePersonality removes a personality by ID.
func (s *Store) DeletePersonality(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.AgentPersonality{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete personality %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("personality %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountPersonalities returns the number of stored personas.
func (s *Store) CountPersonalities(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.AgentPersonality{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count personalities: %w", err)
	}
	return n, nil
}

// SeedPersonalities inserts the catalog as system personas when the table
// is empty. It returns the number of rows inserted.
func (s *Store) SeedPersonalities(ctx context.Context, catalog []config.PersonaSpec) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.AgentPersonality{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		base := time.Now().UTC()
		for i, spec := range catalog {
			p := PersonalityFromSpec(spec)
			// Distinct timestamps keep catalog order stable in listings.
			p.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
			p.UpdatedAt = p.CreatedAt
			if err := tx.Create(&p).Error; err != nil {
				return fmt.Errorf("insert %q: %w", spec.Name, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to seed personalities: %w", err)
	}
	return inserted, nil
}

// PersonalityFromSpec converts a catalog entry into an active, public
// system persona.
func PersonalityFromSpec(spec config.PersonaSpec) model.AgentPersonality {
	temperature := spec.Temperature
	if temperature == "" {
		temperature = "0.7"
	}
	return model.AgentPersonality{
		ID:                newID(),
		Name:              spec.Name,
		Title:             spec.Title,
		Description:       spec.Description,
		SystemPrompt:      spec.SystemPrompt,
		Archetype:         spec.Archetype,
		VoiceType:         spec.VoiceType,
		SpeechPattern:     spec.SpeechPattern,
		PersonalityTraits: spec.PersonalityTraits,
		Quirks:            spec.Quirks,
		KnowledgeDomains:  spec.KnowledgeDomains,
		Specialties:       spec.Specialties,
		Perspective:       spec.Perspective,
		ResponseStyle:     spec.ResponseStyle,
		Temperament:       spec.Temperament,
		Color:             spec.Color,
		Avatar:            spec.Avatar,
		Model:             spec.Model,
		Temperature:       temperature,
		IsActive:          true,
		IsPublic:          true,
	}
}
