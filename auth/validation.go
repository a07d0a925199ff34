package auth

import (
	"net/mail"
	"strings"

	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
)

// ValidationError reports a credential field rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidRequest
}

// ValidateCredential checks the fields a sign-in or sign-up form must carry.
func ValidateCredential(c Credential, requireCaptcha bool) error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email || !strings.Contains(addr.Address, ".") {
		return &ValidationError{Field: "email", Message: "invalid email format"}
	}
	if c.Password == "" {
		return &ValidationError{Field: "password", Message: "password is required"}
	}
	if requireCaptcha && c.CaptchaToken == "" {
		return &ValidationError{Field: "captcha_token", Message: "please complete the captcha verification"}
	}
	return nil
}
