package backend

import (
	"time"

	"golang.org/x/oauth2"
)

// OTPType is the verification flavour passed to VerifyOTP.
type OTPType string

const (
	OTPSignup      OTPType = "signup"
	OTPEmail       OTPType = "email"
	OTPRecovery    OTPType = "recovery"
	OTPInvite      OTPType = "invite"
	OTPMagicLink   OTPType = "magiclink"
	OTPEmailChange OTPType = "email_change"
)

// User is the identity record returned by the auth service.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
}

// Session is a pair of access and refresh tokens for one authenticated user.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"` // unix seconds
	User         *User  `json:"user,omitempty"`
}

// HasTokens reports whether both tokens are present.
func (s Session) HasTokens() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// SameTokens reports whether both sessions carry identical tokens.
func (s Session) SameTokens(o Session) bool {
	return s.AccessToken == o.AccessToken && s.RefreshToken == o.RefreshToken
}

func (s Session) Expiry() time.Time {
	if s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// Token exposes the session as an oauth2 bearer token.
func (s Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       s.Expiry(),
	}
}

// AuthResponse is what every authenticating operation yields. Session is nil
// when the backend still requires email confirmation.
type AuthResponse struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

// Credentials are used once per sign-in and never stored.
type Credentials struct {
	Email        string
	Password     string
	CaptchaToken string
}

// SignUpParams carries the account to create plus optional profile metadata.
type SignUpParams struct {
	Credentials
	Name     string
	Whatsapp string
}

// Profile is a row of the profiles table.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Whatsapp  string `json:"whatsapp"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ProfileUpdates holds the mutable profile fields; nil fields are left untouched.
type ProfileUpdates struct {
	Name      *string `json:"name,omitempty"`
	Whatsapp  *string `json:"whatsapp,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

func (u ProfileUpdates) IsEmpty() bool {
	return u.Name == nil && u.Whatsapp == nil && u.AvatarURL == nil
}

// ApplyTo returns p with the non-nil updates applied.
func (u ProfileUpdates) ApplyTo(p Profile) Profile {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Whatsapp != nil {
		p.Whatsapp = *u.Whatsapp
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	return p
}
