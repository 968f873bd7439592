package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/partsbot/internal/gemini"
	"github.com/MikeSquared-Agency/partsbot/internal/hermes"
	"github.com/MikeSquared-Agency/partsbot/internal/models"
	"github.com/MikeSquared-Agency/partsbot/internal/slack"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type appendCall struct {
	ConversationID string
	Sender         models.Sender
	Text           string
}

type fakeStore struct {
	mu        sync.Mutex
	createErr error
	appendErr error
	created   int
	appends   []appendCall
}

func (f *fakeStore) CreateConversation(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return "conv-" + userID, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, conversationID string, sender models.Sender, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, appendCall{conversationID, sender, text})
	return f.appendErr
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created + len(f.appends)
}

type fakeCatalog struct {
	parts []models.Part
	err   error
}

func (f *fakeCatalog) ListParts(ctx context.Context) ([]models.Part, error) {
	return f.parts, f.err
}

type generateCall struct {
	System  string
	History []gemini.Turn
	Message string
}

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	block chan struct{}
	calls []generateCall
}

func (f *fakeGenerator) Generate(ctx context.Context, system string, history []gemini.Turn, userMessage string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, generateCall{system, history, userMessage})
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.reply, f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

var alice = models.User{ID: "u-1", DisplayName: "Alice"}

func twoParts() []models.Part {
	return []models.Part{
		{Type: "GPU", Name: "RTX4070", Specs: "12GB", Price: 599.99},
		{Type: "CPU", Name: "Ryzen 5 7600", Specs: "6C/12T", Price: 229},
	}
}

func startedOrchestrator(t *testing.T, st *fakeStore, gen *fakeGenerator) *Orchestrator {
	t.Helper()
	o := New(alice, st, &fakeCatalog{parts: twoParts()}, gen, nil, discardLogger())
	require.NoError(t, o.Start(context.Background()))
	return o
}

func TestStart_OpensConversationWithWelcome(t *testing.T) {
	st := &fakeStore{}
	pub := &fakePublisher{}
	o := New(alice, st, &fakeCatalog{parts: twoParts()}, &fakeGenerator{}, pub, discardLogger())
	require.Equal(t, StateIdle, o.State())

	require.NoError(t, o.Start(context.Background()))

	v := o.Snapshot()
	assert.Equal(t, StateReady, v.State)
	assert.True(t, v.InputEnabled)
	assert.Equal(t, "conv-u-1", v.ConversationID)
	assert.Equal(t, 2, v.Parts)
	require.Len(t, v.Messages, 1)
	assert.Equal(t, models.WelcomeID, v.Messages[0].ID)
	assert.Equal(t, models.SenderBot, v.Messages[0].Sender)
	assert.True(t, strings.HasPrefix(v.Messages[0].Text, "Hi Alice!"))
	assert.Empty(t, st.appends, "welcome message is not persisted")
	assert.Equal(t, []string{hermes.SubjectConversationOpened}, pub.subjects)

	assert.ErrorIs(t, o.Start(context.Background()), ErrAlreadyStarted)
}

func TestStart_CatalogFailureIsSoft(t *testing.T) {
	o := New(alice, &fakeStore{}, &fakeCatalog{err: errors.New("timeout")}, &fakeGenerator{}, nil, discardLogger())

	require.NoError(t, o.Start(context.Background()))
	assert.Equal(t, StateReady, o.State())
	assert.Equal(t, 0, o.Snapshot().Parts)
}

func TestStart_ConversationFailureBlocks(t *testing.T) {
	st := &fakeStore{createErr: errors.New("insert failed")}
	gen := &fakeGenerator{reply: "unused"}
	o := New(alice, st, &fakeCatalog{parts: twoParts()}, gen, nil, discardLogger())

	err := o.Start(context.Background())
	require.Error(t, err)

	v := o.Snapshot()
	assert.Equal(t, StateBlocked, v.State)
	assert.False(t, v.InputEnabled)
	assert.Equal(t, StartFailedMessage, v.Error)
	assert.Empty(t, v.Messages)

	_, err = o.Submit(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Empty(t, gen.calls)
	assert.Empty(t, st.appends)
	assert.ErrorIs(t, o.Start(context.Background()), ErrAlreadyStarted, "no automatic retry of open")
}

func TestSubmit_EndToEnd(t *testing.T) {
	st := &fakeStore{}
	gen := &fakeGenerator{reply: "Here's a build..."}
	o := startedOrchestrator(t, st, gen)
	before := len(o.Snapshot().Messages)

	bot, err := o.Submit(context.Background(), "I need a gaming PC under $1000")
	require.NoError(t, err)
	assert.Equal(t, "Here's a build...", bot.Text)

	require.Len(t, gen.calls, 1)
	call := gen.calls[0]
	assert.Contains(t, call.System, "- GPU: RTX4070 (Specs: 12GB) - Price: $599.99")
	assert.Contains(t, call.System, "- CPU: Ryzen 5 7600 (Specs: 6C/12T) - Price: $229.00")
	assert.Empty(t, call.History)
	assert.Equal(t, "I need a gaming PC under $1000", call.Message)

	v := o.Snapshot()
	require.Len(t, v.Messages, before+2)
	assert.Equal(t, models.SenderUser, v.Messages[before].Sender)
	assert.Equal(t, "I need a gaming PC under $1000", v.Messages[before].Text)
	assert.Equal(t, models.SenderBot, v.Messages[before+1].Sender)
	assert.Equal(t, "Here's a build...", v.Messages[before+1].Text)
	assert.Equal(t, StateReady, v.State)
	assert.Empty(t, v.Error)

	assert.Equal(t, []appendCall{
		{"conv-u-1", models.SenderUser, "I need a gaming PC under $1000"},
		{"conv-u-1", models.SenderBot, "Here's a build..."},
	}, st.appends)
}

func TestSubmit_SecondTurnCarriesHistory(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	o := startedOrchestrator(t, &fakeStore{}, gen)

	_, err := o.Submit(context.Background(), "first")
	require.NoError(t, err)
	_, err = o.Submit(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, gen.calls, 2)
	assert.Equal(t, []gemini.Turn{
		{Role: gemini.RoleUser, Text: "first"},
		{Role: gemini.RoleModel, Text: "ok"},
	}, gen.calls[1].History)
}

func TestSubmit_GuardsAreNoOps(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		st := &fakeStore{}
		gen := &fakeGenerator{}
		o := startedOrchestrator(t, st, gen)
		calls := st.calls()
		before := o.Snapshot()

		for _, in := range []string{"", "   ", "\n\t"} {
			_, err := o.Submit(context.Background(), in)
			assert.ErrorIs(t, err, ErrEmptyMessage)
		}
		assert.Equal(t, before, o.Snapshot())
		assert.Equal(t, calls, st.calls())
		assert.Empty(t, gen.calls)
	})

	t.Run("not started", func(t *testing.T) {
		st := &fakeStore{}
		o := New(alice, st, nil, &fakeGenerator{}, nil, discardLogger())

		_, err := o.Submit(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Equal(t, 0, st.calls())
		assert.Equal(t, StateIdle, o.State())
		assert.Empty(t, o.Snapshot().Messages)
	})
}

func TestSubmit_RejectsWhileAwaitingResponse(t *testing.T) {
	st := &fakeStore{}
	gen := &fakeGenerator{reply: "done", block: make(chan struct{})}
	o := startedOrchestrator(t, st, gen)

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return o.State() == StateAwaitingResponse
	}, time.Second, 5*time.Millisecond)
	assert.False(t, o.Snapshot().InputEnabled)

	calls := st.calls()
	msgs := len(o.Snapshot().Messages)
	_, err := o.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, calls, st.calls())
	assert.Len(t, o.Snapshot().Messages, msgs)

	close(gen.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, o.State())
	assert.Len(t, gen.calls, 1)
}

func TestSubmit_GenerationFailure(t *testing.T) {
	st := &fakeStore{}
	gen := &fakeGenerator{err: &gemini.Error{Kind: gemini.KindConfiguration}}
	pub := &fakePublisher{}
	o := New(alice, st, &fakeCatalog{}, gen, pub, discardLogger())
	require.NoError(t, o.Start(context.Background()))
	before := len(o.Snapshot().Messages)

	bot, err := o.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, gemini.MsgConfiguration, bot.Text)

	v := o.Snapshot()
	require.Len(t, v.Messages, before+2)
	assert.Equal(t, models.SenderBot, v.Messages[before+1].Sender)
	assert.Equal(t, gemini.MsgConfiguration, v.Messages[before+1].Text)
	assert.Equal(t, gemini.MsgConfiguration, v.Error)
	assert.Equal(t, StateReady, v.State)
	assert.True(t, v.InputEnabled)

	// Only the user message is persisted; the failure text is UI-only.
	assert.Equal(t, []appendCall{{"conv-u-1", models.SenderUser, "hello"}}, st.appends)
	assert.Equal(t, []string{hermes.SubjectConversationOpened, hermes.SubjectTurnFailed}, pub.subjects)
	assert.Len(t, gen.calls, 1, "failed turns are not retried")
}

func TestSubmit_SuccessClearsPriorError(t *testing.T) {
	gen := &fakeGenerator{err: &gemini.Error{Kind: gemini.KindNetwork}}
	o := startedOrchestrator(t, &fakeStore{}, gen)

	_, err := o.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, gemini.MsgNetwork, o.Snapshot().Error)

	gen.err = nil
	gen.reply = "back online"
	_, err = o.Submit(context.Background(), "hello again")
	require.NoError(t, err)
	assert.Empty(t, o.Snapshot().Error)
}

func TestSubmit_PersistenceFailureKeepsTranscript(t *testing.T) {
	st := &fakeStore{appendErr: errors.New("db down")}
	o := startedOrchestrator(t, st, &fakeGenerator{reply: "still here"})

	_, err := o.Submit(context.Background(), "hello")
	require.NoError(t, err)

	v := o.Snapshot()
	require.Len(t, v.Messages, 3)
	assert.Equal(t, "still here", v.Messages[2].Text)
	assert.Empty(t, v.Error)
	assert.Len(t, st.appends, 2)
}

func TestSubmit_CancelledContextStillCompletes(t *testing.T) {
	gen := &fakeGenerator{reply: "finished"}
	o := startedOrchestrator(t, &fakeStore{}, gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bot, err := o.Submit(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "finished", bot.Text)
}

func TestSubmit_UILocalIDsDistinct(t *testing.T) {
	o := startedOrchestrator(t, &fakeStore{}, &fakeGenerator{reply: "ok"})

	_, err := o.Submit(context.Background(), "one")
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, m := range o.Snapshot().Messages {
		require.NotEmpty(t, m.ID)
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
}

type fakeAlerter struct {
	alerts chan slack.Alert
}

func (f *fakeAlerter) PostAlert(ctx context.Context, a slack.Alert) (string, error) {
	f.alerts <- a
	return "ts", nil
}

func TestSubmit_ProtocolFailureAlertsOperators(t *testing.T) {
	gen := &fakeGenerator{err: &gemini.Error{Kind: gemini.KindProtocol, Detail: "First content should be with role 'user'"}}
	o := startedOrchestrator(t, &fakeStore{}, gen)
	alerter := &fakeAlerter{alerts: make(chan slack.Alert, 1)}
	o.SetAlerter(alerter)

	bot, err := o.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, gemini.MsgProtocol, bot.Text)

	select {
	case a := <-alerter.alerts:
		assert.Equal(t, "protocol", a.Kind)
		assert.Equal(t, "conv-u-1", a.ConversationID)
		assert.Contains(t, a.Detail, "First content should be with role")
	case <-time.After(time.Second):
		t.Fatal("expected an operator alert")
	}
}

func TestSubmit_NetworkFailureDoesNotAlert(t *testing.T) {
	gen := &fakeGenerator{err: &gemini.Error{Kind: gemini.KindNetwork}}
	o := startedOrchestrator(t, &fakeStore{}, gen)
	alerter := &fakeAlerter{alerts: make(chan slack.Alert, 1)}
	o.SetAlerter(alerter)

	_, err := o.Submit(context.Background(), "hello")
	require.NoError(t, err)

	select {
	case a := <-alerter.alerts:
		t.Fatalf("unexpected alert %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubmit_RejectedKeyShowsConfigurationMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    400,
				"message": "API key not valid. Please pass a valid API key.",
				"status":  "INVALID_ARGUMENT",
			},
		})
	}))
	defer server.Close()

	llm := gemini.NewClient("rejected-key", "test-model", 1024, 0.7)
	llm.SetTestTransport(server.URL)

	st := &fakeStore{}
	o := New(alice, st, &fakeCatalog{parts: twoParts()}, llm, nil, discardLogger())
	require.NoError(t, o.Start(context.Background()))

	bot, err := o.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.SenderBot, bot.Sender)
	assert.Equal(t, gemini.MsgConfiguration, bot.Text)

	v := o.Snapshot()
	assert.Equal(t, StateReady, v.State)
	assert.True(t, v.InputEnabled)
	assert.Equal(t, gemini.MsgConfiguration, v.Error)
	require.Len(t, v.Messages, 3)
	assert.Equal(t, models.SenderUser, v.Messages[1].Sender)
	assert.Equal(t, gemini.MsgConfiguration, v.Messages[2].Text)
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(ctx context.Context, system string, history []gemini.Turn, userMessage string) (string, error) {
	panic("backend exploded")
}

func TestSubmit_GeneratorPanicReturnsToReady(t *testing.T) {
	o := New(alice, &fakeStore{}, &fakeCatalog{}, panickingGenerator{}, nil, discardLogger())
	require.NoError(t, o.Start(context.Background()))

	bot, err := o.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.Contains(t, bot.Text, "Failed to generate response: ")
	assert.Contains(t, bot.Text, "backend exploded")
	assert.Equal(t, StateReady, o.State())

	gen := &fakeGenerator{reply: "recovered"}
	o.llm = gen
	bot, err = o.Submit(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "recovered", bot.Text)
}
