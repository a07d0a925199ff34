package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/storefront-auth/internal/config"
	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	authPath    = "/auth/v1"
	restPath    = "/rest/v1"
	profilesTbl = "/profiles"

	headerAPIKey     = "apikey"
	headerPrefer     = "Prefer"
	mediaJSON        = "application/json"
	mediaObjectJSON  = "application/vnd.pgrst.object+json"
	defaultHTTPLimit = 30 * time.Second
)

// Client is a facade over the managed backend's auth service and data API.
// It authenticates data requests with whatever session its SessionStore holds.
type Client struct {
	baseURL     string
	anonKey     string
	redirectURL string
	configErr   error

	sessions SessionStore
	verifier *TokenVerifier
	logger   zerolog.Logger
	now      func() time.Time

	authed *http.Client // bearer = current session, falling back to the anon key
	public *http.Client // bearer = anon key
}

type Option func(*clientOptions)

type clientOptions struct {
	base        *http.Client
	redirectURL string
	verifier    *TokenVerifier
	logger      *zerolog.Logger
	now         func() time.Time
}

// WithHTTPClient sets the client whose transport and timeout are used.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.base = c }
}

// WithRedirectURL sets the page email links return to (the callback route).
func WithRedirectURL(u string) Option {
	return func(o *clientOptions) { o.redirectURL = u }
}

// WithVerifier makes CurrentUser verify tokens locally instead of asking the backend.
func WithVerifier(v *TokenVerifier) Option {
	return func(o *clientOptions) { o.verifier = v }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *clientOptions) { o.logger = &l }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// New builds a Client. Configuration problems are not returned here: every
// operation reports them before attempting any network call.
func New(cfg config.BackendConfig, sessions SessionStore, opts ...Option) *Client {
	o := clientOptions{base: &http.Client{Timeout: defaultHTTPLimit}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}

	c := &Client{
		baseURL:     cfg.GetBackendURL(),
		anonKey:     cfg.GetBackendAnonKey(),
		redirectURL: o.redirectURL,
		configErr:   config.ValidateBackend(cfg),
		sessions:    sessions,
		verifier:    o.verifier,
		logger:      log.Logger,
		now:         o.now,
	}
	if o.logger != nil {
		c.logger = *o.logger
	}

	baseTransport := o.base.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	c.authed = &http.Client{
		Timeout:   o.base.Timeout,
		Jar:       o.base.Jar,
		Transport: &oauth2.Transport{Source: sessionTokenSource{c: c}, Base: baseTransport},
	}
	c.public = &http.Client{
		Timeout:   o.base.Timeout,
		Jar:       o.base.Jar,
		Transport: &oauth2.Transport{Source: oauth2.StaticTokenSource(c.anonToken()), Base: baseTransport},
	}
	return c
}

// Sessions exposes the store the client authenticates with.
func (c *Client) Sessions() SessionStore {
	return c.sessions
}

// Ready returns the configuration error, if any.
func (c *Client) Ready() error {
	return c.configErr
}

func (c *Client) anonToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: c.anonKey, TokenType: "Bearer"}
}

type sessionTokenSource struct {
	c *Client
}

func (s sessionTokenSource) Token() (*oauth2.Token, error) {
	if session, ok := s.c.sessions.Load(); ok && session.AccessToken != "" {
		return session.Token(), nil
	}
	return s.c.anonToken(), nil
}

type request struct {
	client  *http.Client
	method  string
	path    string
	query   url.Values
	headers map[string]string
	body    any
	out     any
}

func (c *Client) do(ctx context.Context, req request) error {
	if c.configErr != nil {
		return c.configErr
	}

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("[backend] encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(raw)
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("[backend] build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set(headerAPIKey, c.anonKey)
	httpReq.Header.Set("Accept", mediaJSON)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", mediaJSON)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := req.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", apperrors.ErrNetwork, req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := parseAPIError(resp)
		c.logger.Debug().
			Str("method", req.method).
			Str("path", req.path).
			Int("status", apiErr.Status).
			Str("code", apiErr.Code).
			Msg(apiErr.Error())
		return apiErr
	}
	if req.out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil {
		return fmt.Errorf("[backend] decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}
