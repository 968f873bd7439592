package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/partsbot/internal/catalog"
	"github.com/MikeSquared-Agency/partsbot/internal/gemini"
	"github.com/MikeSquared-Agency/partsbot/internal/hermes"
	"github.com/MikeSquared-Agency/partsbot/internal/models"
	"github.com/MikeSquared-Agency/partsbot/internal/prompt"
	"github.com/MikeSquared-Agency/partsbot/internal/slack"
)

// StartFailedMessage is shown when the conversation cannot be opened.
const StartFailedMessage = "Failed to start conversation"

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrBusy           = errors.New("a response is already in progress")
	ErrNotReady       = errors.New("conversation not started")
	ErrBlocked        = errors.New("conversation failed to start")
	ErrAlreadyStarted = errors.New("conversation already started")
)

// Store persists conversations and their messages.
type Store interface {
	CreateConversation(ctx context.Context, userID string) (string, error)
	AppendMessage(ctx context.Context, conversationID string, sender models.Sender, text string) error
}

// Generator produces the assistant's reply for one turn.
type Generator interface {
	Generate(ctx context.Context, system string, history []gemini.Turn, userMessage string) (string, error)
}

// Publisher emits best-effort turn events.
type Publisher interface {
	Publish(subject string, data any) error
}

// Alerter notifies operators of failures visitors cannot fix themselves.
type Alerter interface {
	PostAlert(ctx context.Context, a slack.Alert) (string, error)
}

// View is a point-in-time copy of what the visitor sees.
type View struct {
	State          State            `json:"state"`
	ConversationID string           `json:"conversation_id,omitempty"`
	User           models.User      `json:"user"`
	Messages       []models.Message `json:"messages"`
	Error          string           `json:"error,omitempty"`
	Parts          int              `json:"parts"`
	InputEnabled   bool             `json:"input_enabled"`
}

// Orchestrator runs one conversation: it opens it, then processes turns one
// at a time. The in-memory transcript is authoritative; persistence is
// best effort and never rolls it back.
type Orchestrator struct {
	user    models.User
	store   Store
	catalog catalog.Source
	llm     Generator
	events  Publisher
	alerter Alerter
	logger  *slog.Logger

	mu             sync.Mutex
	state          State
	starting       bool
	conversationID string
	parts          catalog.Snapshot
	messages       []models.Message
	errMsg         string
	lastActive     time.Time
}

// New creates an orchestrator in StateIdle. events may be nil.
func New(user models.User, s Store, src catalog.Source, llm Generator, events Publisher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		user:       user,
		store:      s,
		catalog:    src,
		llm:        llm,
		events:     events,
		logger:     logger.With("user_id", user.ID),
		state:      StateIdle,
		lastActive: time.Now(),
	}
}

// SetAlerter enables operator alerts for configuration and protocol failures.
func (o *Orchestrator) SetAlerter(a Alerter) {
	o.alerter = a
}

// Welcome is the greeting placed at the top of a new transcript.
func Welcome(name string) string {
	return fmt.Sprintf("Hi %s! 👋 I'm your PC Shop Sales Assistant. I'm here to help you find the perfect PC components and parts based on your needs. What are you looking for today? (Gaming PC, Workstation, Budget Build, etc.)", name)
}

// Start opens the conversation and loads the catalog snapshot concurrently.
// If the conversation cannot be opened the orchestrator becomes Blocked and
// stays there.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle || o.starting {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.starting = true
	o.mu.Unlock()

	var (
		conversationID string
		parts          catalog.Snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := o.store.CreateConversation(gctx, o.user.ID)
		if err != nil {
			return err
		}
		conversationID = id
		return nil
	})
	g.Go(func() error {
		parts = catalog.Fetch(gctx, o.catalog, o.logger)
		return nil
	})
	err := g.Wait()

	if err == nil && conversationID == "" {
		err = errors.New("empty conversation id")
	}

	o.mu.Lock()
	o.starting = false
	o.lastActive = time.Now()

	if err != nil {
		o.state = StateBlocked
		o.errMsg = StartFailedMessage
		o.mu.Unlock()
		o.logger.Error("failed to create conversation", "error", err)
		return fmt.Errorf("open conversation: %w", err)
	}

	o.conversationID = conversationID
	o.parts = parts
	o.state = StateReady
	o.messages = []models.Message{{
		ID:     models.WelcomeID,
		Sender: models.SenderBot,
		Text:   Welcome(o.user.DisplayName),
	}}
	o.logger = o.logger.With("conversation_id", conversationID)
	o.mu.Unlock()

	o.logger.Info("conversation started", "parts", parts.Len())

	o.publish(hermes.SubjectConversationOpened, hermes.TurnEvent{
		ConversationID: conversationID,
		UserID:         o.user.ID,
		Parts:          parts.Len(),
	})
	return nil
}

// Submit runs one full turn for text. Guard failures (ErrEmptyMessage,
// ErrBusy, ErrNotReady, ErrBlocked) leave everything untouched. A
// generation failure is not an error here: it is returned as the bot
// message and mirrored in the view's error banner.
func (o *Orchestrator) Submit(ctx context.Context, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}

	o.mu.Lock()
	switch o.state {
	case StateAwaitingResponse:
		o.mu.Unlock()
		return models.Message{}, ErrBusy
	case StateBlocked:
		o.mu.Unlock()
		return models.Message{}, ErrBlocked
	case StateIdle:
		o.mu.Unlock()
		return models.Message{}, ErrNotReady
	}
	if o.conversationID == "" {
		o.mu.Unlock()
		return models.Message{}, ErrNotReady
	}

	history := make([]models.Message, len(o.messages))
	copy(history, o.messages)
	conversationID := o.conversationID
	parts := o.parts.Parts()

	o.messages = append(o.messages, models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         models.SenderUser,
		Text:           text,
	})
	o.state = StateAwaitingResponse
	o.lastActive = time.Now()
	o.mu.Unlock()

	// Once started a turn runs to completion.
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	o.persist(ctx, conversationID, models.SenderUser, text)

	system, turns := prompt.BuildContext(parts, history)
	reply, err := o.generate(ctx, system, turns, text)
	if err != nil {
		return o.fail(conversationID, err, started), nil
	}

	bot := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         models.SenderBot,
		Text:           reply,
	}
	o.mu.Lock()
	o.messages = append(o.messages, bot)
	o.errMsg = ""
	o.mu.Unlock()

	o.persist(ctx, conversationID, models.SenderBot, reply)

	o.mu.Lock()
	o.state = StateReady
	o.lastActive = time.Now()
	o.mu.Unlock()

	o.logger.Info("turn completed",
		"history", len(turns),
		"reply_len", len(reply),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	o.publish(hermes.SubjectTurnCompleted, hermes.TurnEvent{
		ConversationID: conversationID,
		UserID:         o.user.ID,
		DurationMS:     time.Since(started).Milliseconds(),
	})
	return bot, nil
}

// generate turns a panicking backend into a generic failure so the turn
// still ends in Ready.
func (o *Orchestrator) generate(ctx context.Context, system string, turns []gemini.Turn, text string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("generation panicked", "panic", r)
			err = &gemini.Error{Kind: gemini.KindGeneric, Detail: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return o.llm.Generate(ctx, system, turns, text)
}

func (o *Orchestrator) fail(conversationID string, err error, started time.Time) models.Message {
	kind := gemini.KindOf(err)
	if kind == gemini.KindProtocol {
		o.logger.Error("generation history out of order", "error", err)
	} else {
		o.logger.Error("generation failed", "kind", kind.String(), "error", err)
	}
	if kind == gemini.KindProtocol || kind == gemini.KindConfiguration {
		o.alert(slack.Alert{
			Kind:           kind.String(),
			ConversationID: conversationID,
			UserID:         o.user.ID,
			Detail:         err.Error(),
		})
	}

	text := gemini.UserMessage(err)
	bot := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         models.SenderBot,
		Text:           text,
	}

	o.mu.Lock()
	o.messages = append(o.messages, bot)
	o.errMsg = text
	o.state = StateReady
	o.lastActive = time.Now()
	o.mu.Unlock()

	o.publish(hermes.SubjectTurnFailed, hermes.TurnEvent{
		ConversationID: conversationID,
		UserID:         o.user.ID,
		FailureKind:    kind.String(),
		DurationMS:     time.Since(started).Milliseconds(),
	})
	return bot
}

func (o *Orchestrator) persist(ctx context.Context, conversationID string, sender models.Sender, text string) {
	if err := o.store.AppendMessage(ctx, conversationID, sender, text); err != nil {
		o.logger.Warn("failed to save message", "sender", string(sender), "error", err)
	}
}

// alert posts in the background so the visitor is not kept waiting.
func (o *Orchestrator) alert(a slack.Alert) {
	if o.alerter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := o.alerter.PostAlert(ctx, a); err != nil {
			o.logger.Warn("failed to post alert", "kind", a.Kind, "error", err)
		}
	}()
}

func (o *Orchestrator) publish(subject string, evt hermes.TurnEvent) {
	if o.events == nil {
		return
	}
	evt.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if err := o.events.Publish(subject, evt); err != nil {
		o.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

// Snapshot returns a copy of the current view.
func (o *Orchestrator) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := make([]models.Message, len(o.messages))
	copy(msgs, o.messages)
	return View{
		State:          o.state,
		ConversationID: o.conversationID,
		User:           o.user,
		Messages:       msgs,
		Error:          o.errMsg,
		Parts:          o.parts.Len(),
		InputEnabled:   o.state.AcceptsInput(),
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastActive is the time of the last start or turn transition.
func (o *Orchestrator) LastActive() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActive
}
