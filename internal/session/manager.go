package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/partsbot/internal/chat"
	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

var ErrNotFound = errors.New("session not found")

// Factory builds an unstarted orchestrator for a visitor.
type Factory func(u models.User) *chat.Orchestrator

// Session binds one conversation orchestrator to its visitor.
type Session struct {
	ID     string
	UserID string
	Chat   *chat.Orchestrator
}

// Manager keeps the live sessions of this process.
type Manager struct {
	factory Factory
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(f Factory, logger *slog.Logger) *Manager {
	return &Manager{
		factory:  f,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open starts a new session for u. A session whose conversation failed to
// open is still registered so the visitor can see the blocked state.
func (m *Manager) Open(ctx context.Context, u models.User) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		UserID: u.ID,
		Chat:   m.factory(u),
	}
	if err := s.Chat.Start(ctx); err != nil {
		m.logger.Warn("session started blocked", "session_id", s.ID, "user_id", u.ID, "error", err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session id owned by userID.
func (m *Manager) Get(id, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than maxIdle. Sessions with a turn
// in flight are kept.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.Chat.State() == chat.StateAwaitingResponse {
			continue
		}
		if s.Chat.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunCleanup sweeps every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(maxIdle); n > 0 {
				m.logger.Info("idle sessions removed", "count", n, "remaining", m.Len())
			}
		}
	}
}
