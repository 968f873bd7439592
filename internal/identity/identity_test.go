package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

type fakeRegistry struct {
	err   error
	names []string
}

func (f *fakeRegistry) CreateUser(ctx context.Context, name string) (models.User, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return models.User{}, f.err
	}
	return models.User{ID: "u-42", DisplayName: name}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegister_UsesRegistry(t *testing.T) {
	reg := &fakeRegistry{}
	st := &MemoryStore{}
	b := NewBootstrap(reg, discardLogger())

	u, err := b.Register(context.Background(), st, "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, models.User{ID: "u-42", DisplayName: "Alice"}, u)
	assert.Equal(t, []string{"Alice"}, reg.names)
	assert.False(t, IsLocal(u))

	got, ok, err := b.Resume(context.Background(), st)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, u, got)
}

func TestRegister_EmptyName(t *testing.T) {
	reg := &fakeRegistry{}
	b := NewBootstrap(reg, discardLogger())

	_, err := b.Register(context.Background(), &MemoryStore{}, "   ")
	assert.ErrorIs(t, err, ErrNameRequired)
	assert.Empty(t, reg.names)
}

func TestRegister_DegradesToLocal(t *testing.T) {
	b := NewBootstrap(&fakeRegistry{err: errors.New("connection refused")}, discardLogger())
	st := &MemoryStore{}

	u, err := b.Register(context.Background(), st, "Bob")
	require.NoError(t, err)
	assert.True(t, IsLocal(u))
	assert.True(t, strings.HasPrefix(u.ID, LocalPrefix))
	assert.Equal(t, "Bob", u.DisplayName)

	second, err := b.Register(context.Background(), &MemoryStore{}, "Bob")
	require.NoError(t, err)
	assert.NotEqual(t, u.ID, second.ID)
}

func TestResume_Empty(t *testing.T) {
	b := NewBootstrap(nil, discardLogger())
	_, ok, err := b.Resume(context.Background(), &MemoryStore{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogout_ClearsLocalOnly(t *testing.T) {
	reg := &fakeRegistry{}
	b := NewBootstrap(reg, discardLogger())
	st := &MemoryStore{}

	_, err := b.Register(context.Background(), st, "Alice")
	require.NoError(t, err)
	require.NoError(t, b.Logout(context.Background(), st))

	_, ok, err := b.Resume(context.Background(), st)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, reg.names, 1)
}

func TestCookieStore_RoundTrip(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, NewCookieStore(w, r, false).Save(context.Background(), models.User{ID: "u-1", DisplayName: "Zoë Smith"}))

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		next.AddCookie(c)
	}

	u, ok, err := NewCookieStore(httptest.NewRecorder(), next, false).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.User{ID: "u-1", DisplayName: "Zoë Smith"}, u)
}

func TestCookieStore_Clear(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/", nil)
	require.NoError(t, NewCookieStore(w, r, false).Clear(context.Background()))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Equal(t, -1, c.MaxAge)
		assert.Empty(t, c.Value)
	}
}

func TestCookieStore_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok, err := NewCookieStore(httptest.NewRecorder(), r, false).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
