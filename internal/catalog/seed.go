package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

// Writer is a Source that can also add entries.
type Writer interface {
	Source
	AddPart(ctx context.Context, p models.Part) error
}

// LoadSeedFile reads a JSON array of parts.
func LoadSeedFile(path string) ([]models.Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var parts []models.Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, p := range parts {
		if p.Type == "" || p.Name == "" {
			return nil, fmt.Errorf("seed entry %d: type and name are required", i)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("seed entry %d (%s): negative price", i, p.Name)
		}
	}
	return parts, nil
}

// Seed adds parts only when the catalog is empty, so restarts do not
// duplicate the inventory. It returns the number of parts added.
func Seed(ctx context.Context, w Writer, parts []models.Part, logger *slog.Logger) (int, error) {
	existing, err := w.ListParts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list parts: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("catalog already populated, skipping seed", "parts", len(existing))
		return 0, nil
	}

	added := 0
	for _, p := range parts {
		if err := w.AddPart(ctx, p); err != nil {
			return added, fmt.Errorf("seed %s %s: %w", p.Type, p.Name, err)
		}
		added++
	}
	logger.Info("catalog seeded", "parts", added)
	return added, nil
}
