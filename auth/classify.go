package auth

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/jrsteele09/storefront-auth/backend"
	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
	"github.com/jrsteele09/storefront-auth/relayclient"
)

// precedence decides which failure is reported when several channels fail.
var precedence = []Kind{
	KindConfiguration,
	KindEmailNotConfirmed,
	KindInvalidCredentials,
	KindRateLimited,
	KindAuthorization,
	KindNetwork,
	KindTimeout,
	KindUnknown,
}

var (
	configurationText = []string{"not configured", "environment variables"}
	timeoutText       = []string{"timeout", "timed out"}
	credentialsText   = []string{"invalid login credentials", "invalid_credentials", "invalid credentials"}
	confirmationText  = []string{"email not confirmed", "email_not_confirmed"}
	rateLimitText     = []string{"too many requests", "too_many_requests", "over_request_rate_limit", "over_email_send_rate_limit"}
	networkText       = []string{"failed to fetch", "networkerror", "network", "econnrefused", "connection refused"}
)

// Classify maps any failure onto a Kind by inspecting sentinels, error types,
// codes and message text.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	e := &Error{Kind: KindUnknown, Message: err.Error(), Err: err}
	var apiErr *backend.APIError
	var relayErr *relayclient.Error
	switch {
	case errors.As(err, &apiErr):
		e.Code, e.Status = apiErr.Code, apiErr.Status
	case errors.As(err, &relayErr):
		e.Code, e.Status = relayErr.BackendErr, relayErr.Code
	}
	e.Kind = kindOf(err, strings.ToLower(e.Message+" "+e.Code), e.Status)
	return e
}

func kindOf(err error, text string, status int) Kind {
	switch {
	case errors.Is(err, apperrors.ErrNotConfigured) || containsAny(text, configurationText):
		return KindConfiguration
	case isTransportError(err):
		return KindNetwork
	case errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || containsAny(text, timeoutText):
		return KindTimeout
	case errors.Is(err, apperrors.ErrInvalidCredentials) || containsAny(text, credentialsText):
		return KindInvalidCredentials
	case errors.Is(err, apperrors.ErrEmailNotConfirmed) || containsAny(text, confirmationText):
		return KindEmailNotConfirmed
	case errors.Is(err, apperrors.ErrRateLimited) || status == 429 || containsAny(text, rateLimitText):
		return KindRateLimited
	case containsAny(text, networkText):
		return KindNetwork
	case errors.Is(err, apperrors.ErrUnauthorized):
		return KindAuthorization
	}
	return KindUnknown
}

// isTransportError reports a failure of one channel's HTTP round trip. A
// per-request client deadline lands here too; KindTimeout is kept for the
// sign-in bound and the caller's own deadline.
func isTransportError(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, apperrors.ErrNetwork), errors.Is(err, syscall.ECONNREFUSED), errors.As(err, &urlErr):
		return true
	case errors.As(err, &netErr):
		// context.DeadlineExceeded satisfies net.Error on its own
		return !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

// ClassifyAll classifies every failure and reports the most specific one.
// The returned error still wraps all of them.
func ClassifyAll(errs ...error) *Error {
	var (
		best     *Error
		rank     = len(precedence)
		failures []error
	)
	for _, err := range errs {
		if err == nil {
			continue
		}
		failures = append(failures, err)
		c := Classify(err)
		if r := rankOf(c.Kind); r < rank {
			best, rank = c, r
		}
	}
	if best == nil {
		return nil
	}
	if len(failures) == 1 {
		return best
	}
	return &Error{
		Kind:    best.Kind,
		Message: best.Message,
		Code:    best.Code,
		Status:  best.Status,
		Err:     errors.Join(failures...),
	}
}

func rankOf(k Kind) int {
	for i, p := range precedence {
		if p == k {
			return i
		}
	}
	return len(precedence)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
