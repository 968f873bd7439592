package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/partsbot/internal/chat"
	"github.com/MikeSquared-Agency/partsbot/internal/identity"
	"github.com/MikeSquared-Agency/partsbot/internal/models"
	"github.com/MikeSquared-Agency/partsbot/internal/session"
)

type registerRequest struct {
	Name string `json:"name"`
}

type submitRequest struct {
	Text string `json:"text"`
}

type sessionResponse struct {
	ID string `json:"id"`
	chat.View
}

type submitResponse struct {
	Reply   models.Message  `json:"reply"`
	Session sessionResponse `json:"session"`
}

type historyResponse struct {
	ConversationID string           `json:"conversation_id"`
	CreatedAt      time.Time        `json:"created_at"`
	Messages       []models.Message `json:"messages"`
}

func (s *Server) cookies(w http.ResponseWriter, r *http.Request) identity.Store {
	return identity.NewCookieStore(w, r, s.secureCookies)
}

// currentUser writes a 401 and returns false when no visitor is known.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	u, ok, err := s.identity.Resume(r.Context(), s.cookies(w, r))
	if err != nil {
		slog.Error("failed to load identity", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load identity")
		return models.User{}, false
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "Please enter your name")
		return models.User{}, false
	}
	return u, true
}

// getIdentity handles GET /api/v1/identity
func (s *Server) getIdentity(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// register handles POST /api/v1/identity
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	u, err := s.identity.Register(r.Context(), s.cookies(w, r), req.Name)
	if errors.Is(err, identity.ErrNameRequired) {
		writeError(w, http.StatusBadRequest, "Please enter your name")
		return
	}
	if err != nil {
		slog.Error("failed to register visitor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// logout handles DELETE /api/v1/identity. Only the local identity is cleared.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.Logout(r.Context(), s.cookies(w, r)); err != nil {
		slog.Error("failed to clear identity", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// openSession handles POST /api/v1/sessions
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	// Opening must finish even if the client goes away, or the session
	// would be stuck blocked.
	sess := s.sessions.Open(context.WithoutCancel(r.Context()), u)
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, View: sess.Chat.Snapshot()})
}

// getSession handles GET /api/v1/sessions/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, View: sess.Chat.Snapshot()})
}

// submitMessage handles POST /api/v1/sessions/{sessionID}/messages
func (s *Server) submitMessage(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	reply, err := sess.Chat.Submit(r.Context(), req.Text)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chat.ErrBusy), errors.Is(err, chat.ErrNotReady), errors.Is(err, chat.ErrBlocked):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Reply:   reply,
		Session: sessionResponse{ID: sess.ID, View: sess.Chat.Snapshot()},
	})
}

// getHistory handles GET /api/v1/sessions/{sessionID}/history. It replays
// what was persisted, which omits failure messages and the welcome.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sess, u, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	convID := sess.Chat.Snapshot().ConversationID
	if convID == "" {
		writeError(w, http.StatusConflict, chat.ErrNotReady.Error())
		return
	}

	conv, err := s.transcripts.GetConversation(r.Context(), convID)
	if err != nil {
		slog.Error("failed to load conversation", "conversation_id", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if conv.UserID != u.ID {
		writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
		return
	}

	msgs, err := s.transcripts.ListMessages(r.Context(), convID)
	if err != nil {
		slog.Error("failed to list messages", "conversation_id", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		ConversationID: conv.ID,
		CreatedAt:      conv.CreatedAt,
		Messages:       msgs,
	})
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, models.User, bool) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return nil, models.User{}, false
	}
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"), u.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, models.User{}, false
	}
	return sess, u, true
}
