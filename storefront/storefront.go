// Package storefront assembles the shopper-facing auth stack from
// configuration: backend client, profile service, relay client, user state
// and the orchestrator that races them.
package storefront

import (
	"context"

	"github.com/jrsteele09/storefront-auth/auth"
	"github.com/jrsteele09/storefront-auth/authstate"
	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/jrsteele09/storefront-auth/internal/config"
	"github.com/jrsteele09/storefront-auth/profiles"
	"github.com/jrsteele09/storefront-auth/relayclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config interface {
	config.BackendConfig
	config.AuthFlowConfig
}

type Stack struct {
	Backend  *backend.Client
	Profiles *profiles.Service
	Relay    *relayclient.Client
	Users    *authstate.Store
	Auth     *auth.Orchestrator
}

type options struct {
	sessions    backend.SessionStore
	backendOpts []backend.Option
	relayOpts   []relayclient.Option
	logger      zerolog.Logger
}

type Option func(*options)

// WithSessionStore persists the direct client's session somewhere other
// than memory.
func WithSessionStore(s backend.SessionStore) Option {
	return func(o *options) { o.sessions = s }
}

func WithBackendOptions(opts ...backend.Option) Option {
	return func(o *options) { o.backendOpts = append(o.backendOpts, opts...) }
}

func WithRelayOptions(opts ...relayclient.Option) Option {
	return func(o *options) { o.relayOpts = append(o.relayOpts, opts...) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func New(c Config, opts ...Option) *Stack {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	client := backend.New(c, o.sessions, append([]backend.Option{backend.WithLogger(o.logger)}, o.backendOpts...)...)
	profileService := profiles.New(client, profiles.WithLogger(o.logger))
	relay := relayclient.New(c.GetRelayURL(), o.relayOpts...)
	users := authstate.New(client, profileService,
		authstate.WithProfileTimeout(c.GetProfileFetchTimeout()),
		authstate.WithLogger(o.logger),
	)

	return &Stack{
		Backend:  client,
		Profiles: profileService,
		Relay:    relay,
		Users:    users,
		Auth:     auth.New(c, client, relay, profileService, auth.WithLogger(o.logger), auth.WithUserState(users)),
	}
}

// Close waits for background sign-in attempts and profile reconciliation.
func (s *Stack) Close() {
	s.Auth.Wait()
}

// Logout signs out of the backend and clears the signed-in user.
func (s *Stack) Logout(ctx context.Context) error {
	return s.Users.Logout(ctx)
}
