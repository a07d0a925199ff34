package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultReconcileAttempts  = 5
	DefaultReconcileBaseDelay = 500 * time.Millisecond
)

// ProfileStore reads and updates profile rows. profiles.Service implements it.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*backend.Profile, error)
	Update(ctx context.Context, id string, updates backend.ProfileUpdates) (*backend.Profile, error)
}

type ReconcileConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReconcileOutcome records what a reconciliation run did.
type ReconcileOutcome struct {
	Attempts int
	Delays   []time.Duration
	Applied  bool
	Profile  *backend.Profile
	LastErr  error
}

// Reconciler waits for a profile row created asynchronously after sign-up
// and then applies pending updates to it.
type Reconciler struct {
	profiles ProfileStore
	cfg      ReconcileConfig
	sleep    Sleeper
	logger   zerolog.Logger
}

type ReconcilerOption func(*Reconciler)

// WithSleeper replaces the wait between attempts.
func WithSleeper(s Sleeper) ReconcilerOption {
	return func(r *Reconciler) { r.sleep = s }
}

func WithReconcilerLogger(l zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

func NewReconciler(profiles ProfileStore, cfg ReconcileConfig, opts ...ReconcilerOption) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultReconcileAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultReconcileBaseDelay
	}
	r := &Reconciler{profiles: profiles, cfg: cfg, sleep: sleepContext, logger: log.Logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Delays returns the wait before each attempt: BaseDelay doubled per attempt.
func (r *Reconciler) Delays() []time.Duration {
	b := r.backoff()
	var delays []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			return delays
		}
		delays = append(delays, d)
	}
}

func (r *Reconciler) backoff() retry.Backoff {
	return retry.WithMaxRetries(uint64(r.cfg.MaxAttempts), retry.NewExponential(r.cfg.BaseDelay))
}

// Run makes at most MaxAttempts sequential attempts, each preceded by its
// backoff delay. An attempt whose profile read fails moves on to the next one;
// a visible row gets the updates and a successful update ends the run.
// Failures are logged and recorded in the outcome, never returned.
func (r *Reconciler) Run(ctx context.Context, userID string, updates backend.ProfileUpdates) ReconcileOutcome {
	var out ReconcileOutcome
	if updates.IsEmpty() {
		return out
	}

	logger := r.logger.With().Str("user_id", userID).Int("max_attempts", r.cfg.MaxAttempts).Logger()
	b := r.backoff()
	for attempt := 1; ; attempt++ {
		delay, stop := b.Next()
		if stop {
			return out
		}
		if err := r.sleep(ctx, delay); err != nil {
			out.LastErr = err
			logger.Warn().Err(err).Int("attempt", attempt).Msg("profile reconciliation interrupted")
			return out
		}
		out.Attempts = attempt
		out.Delays = append(out.Delays, delay)
		last := attempt == r.cfg.MaxAttempts
		attemptLog := logger.With().Int("attempt", attempt).Dur("delay", delay).Logger()

		if _, err := r.profiles.Get(ctx, userID); err != nil {
			out.LastErr = err
			if last {
				attemptLog.Warn().Err(err).Msg("profile was not created after signup")
				return out
			}
			attemptLog.Debug().Err(err).Msg("profile not ready yet")
			continue
		}

		p, err := r.profiles.Update(ctx, userID, updates)
		if err != nil {
			out.LastErr = err
			if last {
				attemptLog.Error().Err(err).Msg("failed to update profile after all attempts")
				return out
			}
			attemptLog.Debug().Err(err).Msg("profile update failed")
			continue
		}

		out.Applied, out.Profile, out.LastErr = true, p, nil
		attemptLog.Info().Msg("profile updated")
		return out
	}
}
