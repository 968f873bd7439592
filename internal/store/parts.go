package store

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

// ListParts reads the whole catalog.
func (s *Store) ListParts(ctx context.Context) ([]models.Part, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT type, name, specs, price::float8 FROM pc_parts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query pc_parts: %w", err)
	}
	defer rows.Close()

	var parts []models.Part
	for rows.Next() {
		var p models.Part
		if err := rows.Scan(&p.Type, &p.Name, &p.Specs, &p.Price); err != nil {
			return nil, fmt.Errorf("scan pc_part: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// AddPart inserts a catalog entry.
func (s *Store) AddPart(ctx context.Context, p models.Part) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pc_parts (type, name, specs, price)
		VALUES ($1, $2, $3, $4)`,
		p.Type, p.Name, p.Specs, p.Price,
	)
	if err != nil {
		return fmt.Errorf("insert pc_part: %w", err)
	}
	return nil
}
