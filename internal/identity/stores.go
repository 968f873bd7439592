package identity

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

// MemoryStore holds one identity in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	user *models.User
}

func (m *MemoryStore) Load(ctx context.Context) (models.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return models.User{}, false, nil
	}
	return *m.user, true, nil
}

func (m *MemoryStore) Save(ctx context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &u
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	return nil
}

const (
	cookieUserID   = "partsbot_user_id"
	cookieUserName = "partsbot_user_name"
	cookieMaxAge   = 365 * 24 * time.Hour
)

// CookieStore keeps the identity in the visitor's browser. It is bound to a
// single request/response pair.
type CookieStore struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool
}

func NewCookieStore(w http.ResponseWriter, r *http.Request, secure bool) *CookieStore {
	return &CookieStore{w: w, r: r, secure: secure}
}

func (c *CookieStore) Load(ctx context.Context) (models.User, bool, error) {
	id, err := c.r.Cookie(cookieUserID)
	if err != nil {
		return models.User{}, false, nil
	}
	name, err := c.r.Cookie(cookieUserName)
	if err != nil {
		return models.User{}, false, nil
	}
	display, err := url.QueryUnescape(name.Value)
	if err != nil {
		return models.User{}, false, nil
	}
	return models.User{ID: id.Value, DisplayName: display}, true, nil
}

func (c *CookieStore) Save(ctx context.Context, u models.User) error {
	c.set(cookieUserID, u.ID, int(cookieMaxAge.Seconds()))
	c.set(cookieUserName, url.QueryEscape(u.DisplayName), int(cookieMaxAge.Seconds()))
	return nil
}

func (c *CookieStore) Clear(ctx context.Context) error {
	c.set(cookieUserID, "", -1)
	c.set(cookieUserName, "", -1)
	return nil
}

func (c *CookieStore) set(name, value string, maxAge int) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
