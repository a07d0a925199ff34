package auth

import (
	"fmt"

	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
)

// Kind is the category of a failed auth operation. Each kind has its own
// remediation in the UI.
type Kind string

const (
	KindConfiguration      Kind = "configuration"
	KindNetwork            Kind = "network"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindEmailNotConfirmed  Kind = "email_not_confirmed"
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindAuthorization      Kind = "authorization"
	KindUnknown            Kind = "unknown"
)

var userMessages = map[Kind]string{
	KindConfiguration:      "Sign-in is not available right now because the store is not configured. Please try again later.",
	KindNetwork:            "Unable to reach the authentication service. Check your internet connection and try again.",
	KindInvalidCredentials: "Invalid email or password. Please try again.",
	KindEmailNotConfirmed:  "Please confirm your email address before signing in. Check your inbox for the confirmation link.",
	KindRateLimited:        "Too many attempts. Please wait a few minutes and try again.",
	KindTimeout:            "Sign-in is taking longer than expected. Please try again.",
	KindAuthorization:      "You are not allowed to perform this action.",
	KindUnknown:            "An unexpected error occurred. Please try again.",
}

// UserMessage is the text shown to the shopper for this kind of failure.
func (k Kind) UserMessage() string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return apperrors.ErrNotConfigured
	case KindNetwork:
		return apperrors.ErrNetwork
	case KindInvalidCredentials:
		return apperrors.ErrInvalidCredentials
	case KindEmailNotConfirmed:
		return apperrors.ErrEmailNotConfirmed
	case KindRateLimited:
		return apperrors.ErrRateLimited
	case KindTimeout:
		return apperrors.ErrTimeout
	case KindAuthorization:
		return apperrors.ErrUnauthorized
	}
	return apperrors.ErrUnknown
}

// Error is a classified auth failure. Message keeps the original text for
// diagnostics; Code and Status are the backend's, when known.
type Error struct {
	Kind    Kind
	Message string
	Code    string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind's sentinel and the underlying failure.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf returns the kind of a classified error, classifying it first if needed.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}
