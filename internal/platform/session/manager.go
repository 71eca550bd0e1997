package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/oklog/ulid/v2"
)

const (
	defaultCookieName = "storefront_session"
	defaultCookiePath = "/"
	defaultLifetime   = 365 * 24 * time.Hour
)

// ErrInvalidConfig indicates the manager was initialised with missing or invalid options.
var ErrInvalidConfig = errors.New("session: invalid config")

// Data is the payload persisted in the browser cookie.
type Data struct {
	DeviceID  string    `json:"deviceId"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session holds the decoded cookie for the current request.
type Session struct {
	data  Data
	dirty bool
}

// DeviceID returns the stable anonymous identifier of the browser.
func (s *Session) DeviceID() string { return s.data.DeviceID }

// Token returns the bearer token stored after login, if any.
func (s *Session) Token() string { return s.data.Token }

// SetToken stores the bearer token. An empty token logs the browser out.
func (s *Session) SetToken(token string) {
	token = strings.TrimSpace(token)
	if token == s.data.Token {
		return
	}
	s.data.Token = token
	s.dirty = true
}

// Dirty reports whether the session must be written back.
func (s *Session) Dirty() bool { return s.dirty }

// Config controls cookie encoding for the session manager.
type Config struct {
	CookieName string
	HashKey    []byte
	BlockKey   []byte
	Secure     bool
	Lifetime   time.Duration
	Now        func() time.Time
}

// Manager decodes and persists session state via signed (and optionally encrypted) cookies.
type Manager struct {
	cfg   Config
	codec *securecookie.SecureCookie
	now   func() time.Time
}

// NewManager constructs a Manager using the provided configuration.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	if n := len(cfg.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.Lifetime.Seconds()))

	return &Manager{cfg: cfg, codec: codec, now: now}, nil
}

// Load decodes the session from the request, minting a new device id when the cookie is absent or tampered.
func (m *Manager) Load(r *http.Request) *Session {
	if cookie, err := r.Cookie(m.cfg.CookieName); err == nil {
		var stored Data
		if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &stored); err == nil && stored.DeviceID != "" {
			return &Session{data: stored}
		}
	}
	return &Session{
		data: Data{
			DeviceID:  ulid.Make().String(),
			CreatedAt: m.now().UTC(),
		},
		dirty: true,
	}
}

// Save writes the session cookie when it changed.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}
	if !sess.dirty {
		return nil
	}
	encoded, err := m.codec.Encode(m.cfg.CookieName, sess.data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    encoded,
		Path:     defaultCookiePath,
		Secure:   m.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  m.now().Add(m.cfg.Lifetime).UTC(),
		MaxAge:   int(m.cfg.Lifetime.Seconds()),
	})
	sess.dirty = false
	return nil
}
