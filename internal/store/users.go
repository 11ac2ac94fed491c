package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/capitalize-ai/roundtable/internal/model"
)

// EnsureUser inserts the user row if it is missing.
func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	user := model.User{ID: userID}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&user).Error
	if err != nil {
		return fmt.Errorf("failed to ensure user %s: %w", userID, err)
	}
	return nil
}

// GetUser loads a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}
	return &user, nil
}
