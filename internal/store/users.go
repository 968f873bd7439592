package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

// CreateUser inserts a visitor record and returns it.
func (s *Store) CreateUser(ctx context.Context, name string) (models.User, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, created_at)
		VALUES ($1, $2, now())`,
		id, name,
	)
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return models.User{ID: id.String(), DisplayName: name}, nil
}
