// Package server hosts the relay routes. Each request gets its own backend
// client whose session lives in a cookie on the caller's browser.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/jrsteele09/storefront-auth/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env         string // Environment (e.g., "DEV", "PROD")
	mux         *http.ServeMux
	routes      []string
	config      config.Config
	logger      zerolog.Logger
	backendOpts []backend.Option
}

type Option func(*Server)

// WithBackendOptions is applied to every per-request backend client.
func WithBackendOptions(opts ...backend.Option) Option {
	return func(s *Server) { s.backendOpts = append(s.backendOpts, opts...) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func New(config config.Config, opts ...Option) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		config: config,
		env:    config.GetEnv(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		s.logger.Debug().Str("method", method).Str("path", path).Msg("route registered")
	}
}

// backendFor returns a backend client bound to the session cookie of this
// request. Sessions it stores are written back as Set-Cookie on w.
func (s *Server) backendFor(w http.ResponseWriter, r *http.Request) (*backend.Client, *CookieSessionStore) {
	store := NewCookieSessionStore(w, r, s.config.GetSessionCookieName(), s.config.GetSessionMaxAge())
	opts := []backend.Option{
		backend.WithRedirectURL(s.callbackURL()),
		backend.WithLogger(*requestLogger(r, s.logger)),
	}
	return backend.New(s.config, store, append(opts, s.backendOpts...)...), store
}

func (s *Server) callbackURL() string {
	return fmt.Sprintf("%s%s", s.config.GetSiteURL(), RouteAuthCallback)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
