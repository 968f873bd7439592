package catalog

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

// Source reads the full parts inventory.
type Source interface {
	ListParts(ctx context.Context) ([]models.Part, error)
}

// Snapshot is a read-only view of the catalog taken once per session.
// It is safe to share between goroutines.
type Snapshot struct {
	parts []models.Part
}

// NewSnapshot copies parts into a new snapshot.
func NewSnapshot(parts []models.Part) Snapshot {
	cp := make([]models.Part, len(parts))
	copy(cp, parts)
	return Snapshot{parts: cp}
}

// Parts returns a copy of the snapshot's entries.
func (s Snapshot) Parts() []models.Part {
	cp := make([]models.Part, len(s.parts))
	copy(cp, s.parts)
	return cp
}

func (s Snapshot) Len() int { return len(s.parts) }

// Fetch makes a single attempt to read the catalog. Any failure yields an
// empty snapshot: recommendations get thinner but the session carries on.
func Fetch(ctx context.Context, src Source, logger *slog.Logger) Snapshot {
	if src == nil {
		logger.Warn("no catalog source configured")
		return Snapshot{}
	}
	parts, err := src.ListParts(ctx)
	if err != nil {
		logger.Warn("failed to fetch pc parts", "error", err)
		return Snapshot{}
	}
	logger.Debug("catalog loaded", "parts", len(parts))
	return NewSnapshot(parts)
}
