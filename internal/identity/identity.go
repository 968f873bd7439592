// Package identity keeps track of who the visitor is for the lifetime of
// their browser session and registers new visitors.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

// LocalPrefix marks user IDs synthesized when the registry is unreachable.
const LocalPrefix = "local-"

var ErrNameRequired = errors.New("name is required")

// Store is the client-resident key/value record of the current visitor.
type Store interface {
	Load(ctx context.Context) (models.User, bool, error)
	Save(ctx context.Context, u models.User) error
	Clear(ctx context.Context) error
}

// Registry creates user records remotely.
type Registry interface {
	CreateUser(ctx context.Context, name string) (models.User, error)
}

type Bootstrap struct {
	registry Registry
	logger   *slog.Logger
}

func NewBootstrap(r Registry, logger *slog.Logger) *Bootstrap {
	return &Bootstrap{registry: r, logger: logger}
}

// Resume returns the previously stored visitor, if any.
func (b *Bootstrap) Resume(ctx context.Context, st Store) (models.User, bool, error) {
	u, ok, err := st.Load(ctx)
	if err != nil {
		return models.User{}, false, fmt.Errorf("load identity: %w", err)
	}
	if !ok || u.ID == "" || u.DisplayName == "" {
		return models.User{}, false, nil
	}
	return u, true, nil
}

// Register creates a user for name and remembers it in st. When the
// registry fails the visitor continues with a locally synthesized ID;
// that user is never reconciled with the registry.
func (b *Bootstrap) Register(ctx context.Context, st Store, name string) (models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.User{}, ErrNameRequired
	}

	var (
		u   models.User
		err error
	)
	if b.registry != nil {
		u, err = b.registry.CreateUser(ctx, name)
	} else {
		err = errors.New("no user registry configured")
	}
	if err != nil || u.ID == "" {
		b.logger.Warn("user registry unavailable, using local identity", "error", err)
		u = models.User{ID: LocalPrefix + uuid.NewString(), DisplayName: name}
	}

	if err := st.Save(ctx, u); err != nil {
		return models.User{}, fmt.Errorf("save identity: %w", err)
	}
	b.logger.Info("visitor registered", "user_id", u.ID, "local", IsLocal(u))
	return u, nil
}

// Logout forgets the visitor locally. Remote records are untouched.
func (b *Bootstrap) Logout(ctx context.Context, st Store) error {
	if err := st.Clear(ctx); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

func IsLocal(u models.User) bool {
	return strings.HasPrefix(u.ID, LocalPrefix)
}
