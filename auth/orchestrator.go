// Package auth signs shoppers in and up by racing the direct backend path
// against the server relay, and reconciles the profile row created
// asynchronously after sign-up.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/jrsteele09/storefront-auth/internal/config"
	"github.com/jrsteele09/storefront-auth/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Direct is the in-process backend client. Its session store is the
// canonical one that relay sessions are mirrored into.
type Direct interface {
	SignInWithPassword(ctx context.Context, creds backend.Credentials) (*backend.AuthResponse, error)
	SetSession(ctx context.Context, session backend.Session) (*backend.AuthResponse, error)
}

// Relay performs the same operations through the server-side routes.
type Relay interface {
	SignIn(ctx context.Context, creds backend.Credentials) (*backend.AuthResponse, error)
	SignUp(ctx context.Context, params backend.SignUpParams) (*backend.AuthResponse, error)
}

// UserState is told about every sign-in or sign-up that produced a session.
type UserState interface {
	Record(ctx context.Context, res *Result) error
}

type Config interface {
	config.BackendConfig
	GetCaptchaSignInEnabled() bool
	GetSignInTimeout() time.Duration
}

// Credential is used for a single request and never stored.
type Credential struct {
	Email        string
	Password     string
	CaptchaToken string
}

func (c Credential) backend() backend.Credentials {
	return backend.Credentials{Email: strings.TrimSpace(c.Email), Password: c.Password, CaptchaToken: c.CaptchaToken}
}

type SignUpRequest struct {
	Credential
	Name     string
	Whatsapp string
}

// Result is a successful sign-in or sign-up. Session is nil when the backend
// requires email confirmation first.
type Result struct {
	User    *backend.User
	Session *backend.Session
	Channel Channel
}

var errRelayNoSession = errors.New("relay sign-in returned no session")

type Orchestrator struct {
	cfg        Config
	direct     Direct
	relay      Relay
	reconciler *Reconciler
	users      UserState
	timeout    time.Duration
	logger     zerolog.Logger

	tasks sync.WaitGroup
}

type Option func(*Orchestrator)

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSignInTimeout overrides the configured sign-in bound.
func WithSignInTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithReconciler replaces the default profile reconciler.
func WithReconciler(r *Reconciler) Option {
	return func(o *Orchestrator) { o.reconciler = r }
}

// WithUserState records the user of each successful call that carries a session.
func WithUserState(u UserState) Option {
	return func(o *Orchestrator) { o.users = u }
}

// New wires the orchestrator. profiles may be nil, which disables profile
// reconciliation after sign-up.
func New(cfg Config, direct Direct, relay Relay, profiles ProfileStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		direct:  direct,
		relay:   relay,
		timeout: cfg.GetSignInTimeout(),
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.timeout <= 0 {
		o.timeout = config.DefaultSignInTimeout
	}
	if o.reconciler == nil && profiles != nil {
		o.reconciler = NewReconciler(profiles, ReconcileConfig{}, WithReconcilerLogger(o.logger))
	}
	return o
}

// Wait blocks until background work started by earlier calls has finished:
// profile reconciliation and sign-in attempts that lost their race.
func (o *Orchestrator) Wait() {
	o.tasks.Wait()
}

// SignIn races the direct and relay paths and returns the first success. A
// relay session is mirrored into the direct client's store before the relay
// path counts as successful.
func (o *Orchestrator) SignIn(ctx context.Context, cred Credential) (*Result, error) {
	if err := ValidateCredential(cred, o.cfg.GetCaptchaSignInEnabled()); err != nil {
		return nil, err
	}
	if err := config.ValidateBackend(o.cfg); err != nil {
		o.logger.Error().Err(err).Msg("sign in refused: backend not configured")
		return nil, Classify(err)
	}

	creds := cred.backend()
	start := time.Now()
	outcome := firstSuccess(ctx, &o.tasks, o.timeout,
		attempt[*backend.AuthResponse]{channel: ChannelDirect, run: func(ctx context.Context) (*backend.AuthResponse, error) {
			return o.direct.SignInWithPassword(ctx, creds)
		}},
		attempt[*backend.AuthResponse]{channel: ChannelRelay, run: func(ctx context.Context) (*backend.AuthResponse, error) {
			res, err := o.relay.SignIn(ctx, creds)
			if err != nil {
				return nil, err
			}
			if res.Session == nil || !res.Session.HasTokens() {
				return nil, errRelayNoSession
			}
			return o.direct.SetSession(ctx, *res.Session)
		}},
	)

	logger := o.logger.With().Int64("duration_ms", time.Since(start).Milliseconds()).Logger()
	switch {
	case outcome.winner != "":
		logger.Info().Str("channel", string(outcome.winner)).Msg("signed in")
		result := &Result{User: outcome.value.User, Session: outcome.value.Session, Channel: outcome.winner}
		o.record(ctx, result)
		return result, nil
	case outcome.timedOut:
		err := timeoutError(o.timeout)
		logger.Warn().Err(err).Msg("sign in timed out")
		return nil, err
	}

	err := ClassifyAll(outcome.failures...)
	logger.Warn().Err(err).Str("kind", string(err.Kind)).Msg("sign in failed")
	return nil, err
}

// SignUp creates the account through the relay, mirrors any session it
// returns, and reconciles the profile in the background. Reconciliation
// never affects the returned value.
func (o *Orchestrator) SignUp(ctx context.Context, req SignUpRequest) (*Result, error) {
	if err := ValidateCredential(req.Credential, false); err != nil {
		return nil, err
	}
	if err := config.ValidateBackend(o.cfg); err != nil {
		o.logger.Error().Err(err).Msg("sign up refused: backend not configured")
		return nil, Classify(err)
	}

	res, err := o.relay.SignUp(ctx, backend.SignUpParams{
		Credentials: req.Credential.backend(),
		Name:        req.Name,
		Whatsapp:    req.Whatsapp,
	})
	if err != nil {
		classified := Classify(err)
		o.logger.Warn().Err(classified).Str("kind", string(classified.Kind)).Msg("sign up failed")
		return nil, classified
	}

	result := &Result{User: res.User, Session: res.Session, Channel: ChannelRelay}
	if res.Session != nil && res.Session.HasTokens() {
		if mirrored, err := o.direct.SetSession(ctx, *res.Session); err != nil {
			o.logger.Warn().Err(err).Msg("failed to set client session after signup")
		} else {
			result.Session = mirrored.Session
		}
		o.record(ctx, result)
	}

	updates := backend.ProfileUpdates{
		Name:     utils.OptionalString(req.Name),
		Whatsapp: utils.OptionalString(req.Whatsapp),
	}
	if o.reconciler != nil && res.User != nil && res.User.ID != "" && !updates.IsEmpty() {
		userID := res.User.ID
		bg := context.WithoutCancel(ctx)
		o.tasks.Add(1)
		go func() {
			defer o.tasks.Done()
			o.reconciler.Run(bg, userID, updates)
		}()
	}
	return result, nil
}

// record passes a result to the user state. Failures are logged only; the
// session is already stored and the call has succeeded.
func (o *Orchestrator) record(ctx context.Context, res *Result) {
	if o.users == nil || res.Session == nil || res.User == nil {
		return
	}
	if err := o.users.Record(ctx, res); err != nil {
		o.logger.Warn().Err(err).Str("user_id", res.User.ID).Msg("failed to record signed-in user")
	}
}
