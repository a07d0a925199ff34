// Package backendfake is an in-memory stand-in for the managed backend's auth
// service and profiles table, served over HTTP for tests and local runs.
package backendfake

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/jrsteele09/storefront-auth/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// Route names used for call counting and failure injection.
const (
	RouteSignup        = "signup"
	RouteTokenPassword = "token:password"
	RouteTokenRefresh  = "token:refresh_token"
	RouteTokenPKCE     = "token:pkce"
	RouteVerify        = "verify"
	RouteUserGet       = "user:GET"
	RouteUserPut       = "user:PUT"
	RouteLogout        = "logout"
	RouteRecover       = "recover"
	RouteResend        = "resend"
	RouteProfileGet    = "profiles:GET"
	RouteProfilePatch  = "profiles:PATCH"
	RouteProfilePost   = "profiles:POST"
)

// DefaultOTP is the one-time code issued for every confirmation.
const DefaultOTP = "123456"

type Options struct {
	// RequireConfirmation makes sign-up return a bare user and blocks
	// password sign-in until the address is verified.
	RequireConfirmation bool
	// ProfileDelayReads is how many profile reads miss before the row the
	// sign-up trigger creates becomes visible.
	ProfileDelayReads int
	// DisableProfileTrigger stops sign-up from creating profile rows.
	DisableProfileTrigger bool
	// TokenTTL is the access token lifetime (default one hour).
	TokenTTL time.Duration
	// Latency delays every response.
	Latency time.Duration
}

type account struct {
	user         backend.User
	passwordHash []byte
	confirmed    bool
}

type pendingProfile struct {
	profile   backend.Profile
	readsLeft int
}

type Server struct {
	*httptest.Server
	opts    Options
	key     *rsa.PrivateKey
	anonKey string

	mu       sync.Mutex
	accounts map[string]*account // by email
	profiles map[string]backend.Profile
	pending  map[string]*pendingProfile
	refresh  map[string]string // refresh token -> user id
	codes    map[string]string // auth code -> user id
	calls    map[string]int
	failures map[string]*backend.APIError
}

// Start launches the fake on a local listener. Call Close when done.
func Start(opts Options) *Server {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("backendfake: generate key: " + err.Error())
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = time.Hour
	}

	s := &Server{
		opts:     opts,
		key:      key,
		accounts: make(map[string]*account),
		profiles: make(map[string]backend.Profile),
		pending:  make(map[string]*pendingProfile),
		refresh:  make(map[string]string),
		codes:    make(map[string]string),
		calls:    make(map[string]int),
		failures: make(map[string]*backend.APIError),
	}
	s.anonKey, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "anon"}).SignedString([]byte("anon"))
	if err != nil {
		panic("backendfake: sign anon key: " + err.Error())
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *Server) AnonKey() string {
	return s.anonKey
}

// Issuer is the iss claim of every access token.
func (s *Server) Issuer() string {
	return s.URL + "/auth/v1"
}

func (s *Server) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// Config returns a configuration pointing at this fake.
func (s *Server) Config() config.Config {
	var file config.FileValues
	file.Backend.URL = s.URL
	file.Backend.AnonKey = s.anonKey
	return config.NewWithFile(file)
}

// CreateUser registers an account directly, bypassing sign-up, and returns its id.
func (s *Server) CreateUser(email, password string, confirmed bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAccount(email, password, nil, confirmed).user.ID
}

// Profile returns the visible profile row for id.
func (s *Server) Profile(id string) (backend.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	return p, ok
}

// PutProfile writes a profile row directly.
func (s *Server) PutProfile(p backend.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, p.ID)
	s.profiles[p.ID] = p
}

// IssueCode returns an auth code exchangeable for a session of email's user.
func (s *Server) IssueCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return ""
	}
	code := uuid.NewString()
	s.codes[code] = acc.user.ID
	return code
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns how many requests reached the fake at all.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Fail makes every request to route answer with err until ClearFailures.
func (s *Server) Fail(route string, err *backend.APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = err
}

func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]*backend.APIError)
}

// SignAccessToken issues a token for userID with the given lifetime. A
// negative ttl produces an already-expired token.
func (s *Server) SignAccessToken(userID, email string, ttl time.Duration) string {
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   s.Issuer(),
		"sub":   userID,
		"email": email,
		"role":  "authenticated",
		"aud":   "authenticated",
		"iat":   now.Add(-time.Minute).Unix(),
		"exp":   now.Add(ttl).Unix(),
	}).SignedString(s.key)
	if err != nil {
		panic("backendfake: sign access token: " + err.Error())
	}
	return token
}

// IssueSession creates a session for an existing account.
func (s *Server) IssueSession(email string) backend.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newSession(s.accounts[strings.ToLower(email)].user)
}

func (s *Server) createAccount(email, password string, meta map[string]any, confirmed bool) *account {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic("backendfake: hash password: " + err.Error())
	}
	now := time.Now().UTC()
	acc := &account{
		user: backend.User{
			ID:           uuid.NewString(),
			Email:        strings.ToLower(email),
			UserMetadata: meta,
			CreatedAt:    &now,
		},
		passwordHash: hash,
		confirmed:    confirmed,
	}
	if confirmed {
		acc.user.EmailConfirmedAt = &now
	}
	s.accounts[acc.user.Email] = acc
	return acc
}

func (s *Server) newSession(user backend.User) backend.Session {
	refresh := uuid.NewString()
	s.refresh[refresh] = user.ID
	u := user
	return backend.Session{
		AccessToken:  s.SignAccessToken(user.ID, user.Email, s.opts.TokenTTL),
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.opts.TokenTTL.Seconds()),
		ExpiresAt:    time.Now().Add(s.opts.TokenTTL).Unix(),
		User:         &u,
	}
}

func (s *Server) accountByID(id string) *account {
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

// bearerUser returns the user id of a valid bearer token, or "" for the anon key.
func (s *Server) bearerUser(r *http.Request) (string, bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == s.anonKey {
		return "", true
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return "", false
	}
	sub, _ := claims.GetSubject()
	return sub, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": msg})
}

func writeDataError(w http.ResponseWriter, status int, code, msg, details string) {
	writeJSON(w, status, map[string]any{"code": code, "message": msg, "details": details, "hint": nil})
}

func writeInjected(w http.ResponseWriter, e *backend.APIError) {
	writeJSON(w, e.Status, map[string]any{"code": e.Code, "message": e.Message, "details": e.Details})
}
