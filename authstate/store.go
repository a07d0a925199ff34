// Package authstate holds the process-wide signed-in shopper. SetUser and
// Clear are its only mutators; Initialize restores it from a persisted session.
package authstate

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/storefront-auth/auth"
	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/jrsteele09/storefront-auth/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// User is the shopper as the storefront displays them.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Whatsapp string `json:"whatsapp"`
}

// Sessions is the backend client's view of the persisted session.
type Sessions interface {
	GetSession(ctx context.Context) (*backend.Session, error)
	SignOut(ctx context.Context) error
}

type ProfileReader interface {
	Get(ctx context.Context, id string) (*backend.Profile, error)
}

type Store struct {
	sessions       Sessions
	profiles       ProfileReader
	profileTimeout time.Duration
	logger         zerolog.Logger

	mu   sync.RWMutex
	user *User
}

type Option func(*Store)

// WithProfileTimeout bounds the profile read done while building the user.
func WithProfileTimeout(d time.Duration) Option {
	return func(s *Store) { s.profileTimeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(sessions Sessions, profiles ProfileReader, opts ...Option) *Store {
	s := &Store{
		sessions:       sessions,
		profiles:       profiles,
		profileTimeout: config.DefaultProfileFetchTimeout,
		logger:         log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// User returns a copy of the signed-in user.
func (s *Store) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *Store) IsAuthenticated() bool {
	_, ok := s.User()
	return ok
}

// SetUser replaces the signed-in user; nil signs out locally.
func (s *Store) SetUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		return
	}
	cp := *u
	s.user = &cp
}

func (s *Store) Clear() {
	s.SetUser(nil)
}

// Initialize restores the user from the persisted session. Any failure
// leaves the store signed out.
func (s *Store) Initialize(ctx context.Context) error {
	session, err := s.sessions.GetSession(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("auth initialization error")
		s.Clear()
		return err
	}
	if session == nil {
		s.Clear()
		return nil
	}

	identity := session.User
	if identity == nil {
		claims, err := backend.ParseClaims(session.AccessToken)
		if err != nil {
			s.logger.Error().Err(err).Msg("auth initialization error")
			s.Clear()
			return err
		}
		identity = claims.User()
	}

	u := s.buildUser(ctx, identity)
	s.SetUser(&u)
	return nil
}

// CompleteSignIn records the user of a successful sign-in or sign-up. A
// result without a session means the address still has to be confirmed.
func (s *Store) CompleteSignIn(ctx context.Context, res *auth.Result) (User, error) {
	if res == nil || res.Session == nil || res.User == nil {
		return User{}, &auth.Error{
			Kind:    auth.KindEmailNotConfirmed,
			Message: "Please check your email to confirm your account before signing in.",
		}
	}
	u := s.buildUser(ctx, res.User)
	s.SetUser(&u)
	return u, nil
}

// Record satisfies auth.UserState so the orchestrator can update the store
// directly after a sign-in or sign-up.
func (s *Store) Record(ctx context.Context, res *auth.Result) error {
	_, err := s.CompleteSignIn(ctx, res)
	return err
}

// Logout signs out of the backend and clears the store even when that fails.
func (s *Store) Logout(ctx context.Context) error {
	defer s.Clear()
	if err := s.sessions.SignOut(ctx); err != nil {
		s.logger.Error().Err(err).Msg("logout error")
		return err
	}
	return nil
}

func (s *Store) buildUser(ctx context.Context, identity *backend.User) User {
	u := User{ID: identity.ID, Email: identity.Email, Name: displayName("", identity.Email)}
	if s.profiles == nil {
		return u
	}

	ctx, cancel := context.WithTimeout(ctx, s.profileTimeout)
	defer cancel()
	profile, err := s.profiles.Get(ctx, identity.ID)
	if err != nil {
		s.logger.Debug().Err(err).Str("user_id", identity.ID).Msg("profile unavailable, using basic user info")
		return u
	}
	u.Name = displayName(profile.Name, identity.Email)
	u.Whatsapp = profile.Whatsapp
	return u
}

func displayName(profileName, email string) string {
	if profileName != "" {
		return profileName
	}
	if local, _, _ := strings.Cut(email, "@"); local != "" {
		return local
	}
	return "User"
}
