package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
)

// Channel names one of the independent paths an operation can take.
type Channel string

const (
	ChannelDirect Channel = "direct"
	ChannelRelay  Channel = "relay"
)

type attempt[T any] struct {
	channel Channel
	run     func(ctx context.Context) (T, error)
}

type attemptResult[T any] struct {
	channel Channel
	value   T
	err     error
}

type raceOutcome[T any] struct {
	value    T
	winner   Channel
	failures []error
	timedOut bool
}

// firstSuccess runs every attempt concurrently and returns the first one to
// succeed. A failed attempt never ends the race while others are pending;
// the race ends with the collected failures only once all have failed, or
// with timedOut when the bound elapses first. Attempts run detached from ctx:
// cancelling it ends the race, never the attempts. wg lets the owner wait for
// the ones still running.
func firstSuccess[T any](ctx context.Context, wg *sync.WaitGroup, bound time.Duration, attempts ...attempt[T]) raceOutcome[T] {
	results := make(chan attemptResult[T], len(attempts))
	detached := context.WithoutCancel(ctx)
	for _, a := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := a.run(detached)
			results <- attemptResult[T]{channel: a.channel, value: v, err: err}
		}()
	}

	timer := time.NewTimer(bound)
	defer timer.Stop()

	var out raceOutcome[T]
	collect := func(r attemptResult[T]) bool {
		if r.err == nil {
			out.value, out.winner = r.value, r.channel
			return true
		}
		out.failures = append(out.failures, fmt.Errorf("%s: %w", r.channel, r.err))
		return false
	}

	for pending := len(attempts); pending > 0; {
		select {
		case r := <-results:
			pending--
			if collect(r) {
				return out
			}
		case <-timer.C:
			// Results delivered alongside the timer still count.
			for pending > 0 {
				select {
				case r := <-results:
					pending--
					if collect(r) {
						return out
					}
				default:
					out.timedOut = true
					return out
				}
			}
			return out
		case <-ctx.Done():
			out.failures = append(out.failures, ctx.Err())
			return out
		}
	}
	return out
}

func timeoutError(bound time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("sign-in timed out after %s", bound),
		Err:     apperrors.ErrTimeout,
	}
}
