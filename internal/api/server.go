package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/partsbot/internal/identity"
	"github.com/MikeSquared-Agency/partsbot/internal/models"
	"github.com/MikeSquared-Agency/partsbot/internal/session"
)

// Transcripts reads back persisted conversations.
type Transcripts interface {
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

type Server struct {
	router        *chi.Mux
	port          int
	identity      *identity.Bootstrap
	sessions      *session.Manager
	transcripts   Transcripts
	secureCookies bool
}

func NewServer(port int, boot *identity.Bootstrap, sessions *session.Manager, transcripts Transcripts, secureCookies bool) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:        router,
		port:          port,
		identity:      boot,
		sessions:      sessions,
		transcripts:   transcripts,
		secureCookies: secureCookies,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/partsbot/status", s.status)

	router.Route("/api/v1/identity", func(r chi.Router) {
		r.Get("/", s.getIdentity)
		r.Post("/", s.register)
		r.Delete("/", s.logout)
	})
	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.openSession)
		r.Get("/{sessionID}", s.getSession)
		r.Post("/{sessionID}/messages", s.submitMessage)
		r.Get("/{sessionID}/history", s.getHistory)
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":    "partsbot",
		"status":   "ready",
		"sessions": s.sessions.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
