package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/storefront-auth/backend"
)

// codeVerifierSuffix names the cookie a PKCE flow keeps its verifier in,
// next to the session cookie.
const codeVerifierSuffix = "-code-verifier"

// CookieSessionStore keeps the backend session in a cookie on the caller's
// browser. Load reads the request cookie; Save and Clear write Set-Cookie on
// the response and are visible to later Loads on the same store.
type CookieSessionStore struct {
	w      http.ResponseWriter
	r      *http.Request
	name   string
	maxAge time.Duration

	mu      sync.Mutex
	loaded  bool
	session *backend.Session
}

var _ backend.SessionStore = (*CookieSessionStore)(nil)

func NewCookieSessionStore(w http.ResponseWriter, r *http.Request, name string, maxAge time.Duration) *CookieSessionStore {
	return &CookieSessionStore{w: w, r: r, name: name, maxAge: maxAge}
}

func (c *CookieSessionStore) Load() (*backend.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		c.loaded = true
		c.session = c.readCookie()
	}
	if c.session == nil {
		return nil, false
	}
	s := *c.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return &s, true
}

func (c *CookieSessionStore) Save(s backend.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && c.session != nil && c.session.SameTokens(s) {
		return nil
	}
	value, err := encodeSession(s)
	if err != nil {
		return fmt.Errorf("[CookieSessionStore Save] %w", err)
	}
	http.SetCookie(c.w, c.cookie(c.name, value, int(c.maxAge.Seconds())))
	c.loaded, c.session = true, &s
	return nil
}

func (c *CookieSessionStore) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	http.SetCookie(c.w, c.cookie(c.name, "", -1))
	c.loaded, c.session = true, nil
	return nil
}

// CodeVerifier returns the PKCE verifier stored alongside the session, if any.
func (c *CookieSessionStore) CodeVerifier() string {
	cookie, err := c.r.Cookie(c.name + codeVerifierSuffix)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ClearCodeVerifier drops the verifier once the code has been exchanged.
func (c *CookieSessionStore) ClearCodeVerifier() {
	http.SetCookie(c.w, c.cookie(c.name+codeVerifierSuffix, "", -1))
}

func (c *CookieSessionStore) readCookie() *backend.Session {
	cookie, err := c.r.Cookie(c.name)
	if err != nil || cookie.Value == "" {
		return nil
	}
	s, err := decodeSession(cookie.Value)
	if err != nil || !s.HasTokens() {
		return nil
	}
	return s
}

func (c *CookieSessionStore) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(c.r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

func encodeSession(s backend.Session) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeSession(value string) (*backend.Session, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	var s backend.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
