// Package profiles reads and updates profile rows as the signed-in user.
package profiles

import (
	"context"
	"fmt"

	"github.com/jrsteele09/storefront-auth/backend"
	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Backend is the subset of the backend facade profile operations need.
type Backend interface {
	CurrentUser(ctx context.Context) (*backend.User, error)
	GetProfile(ctx context.Context, id string) (*backend.Profile, error)
	UpdateProfile(ctx context.Context, id string, updates backend.ProfileUpdates) (*backend.Profile, error)
	InsertProfile(ctx context.Context, profile backend.Profile) (*backend.Profile, error)
}

var _ Backend = (*backend.Client)(nil)

type Service struct {
	backend Backend
	logger  zerolog.Logger
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(b Backend, opts ...Option) *Service {
	s := &Service{backend: b, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the profile row for id. A missing row satisfies backend.IsNoRows.
func (s *Service) Get(ctx context.Context, id string) (*backend.Profile, error) {
	return s.backend.GetProfile(ctx, id)
}

// Update applies updates to the profile of userID, which must be the
// signed-in user. When no row exists yet one is inserted carrying the user's
// id and email plus the updates.
func (s *Service) Update(ctx context.Context, userID string, updates backend.ProfileUpdates) (*backend.Profile, error) {
	user, err := s.backend.CurrentUser(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNoSession) {
			return nil, fmt.Errorf("%w: no signed-in user", apperrors.ErrUnauthorized)
		}
		return nil, err
	}
	if user == nil || user.ID == "" || user.ID != userID {
		return nil, fmt.Errorf("%w: cannot update profile %q as another user", apperrors.ErrUnauthorized, userID)
	}

	updated, err := s.backend.UpdateProfile(ctx, userID, updates)
	if err == nil {
		return updated, nil
	}
	if !backend.IsNoRows(err) {
		return nil, err
	}

	s.logger.Debug().Str("user_id", userID).Msg("profile row missing, inserting")
	return s.backend.InsertProfile(ctx, updates.ApplyTo(backend.Profile{ID: userID, Email: user.Email}))
}
