package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
)

type securityMeta struct {
	CaptchaToken string `json:"captcha_token,omitempty"`
}

func captcha(token string) *securityMeta {
	if token == "" {
		return nil
	}
	return &securityMeta{CaptchaToken: token}
}

// SignInWithPassword authenticates and stores the resulting session.
func (c *Client) SignInWithPassword(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	var session Session
	err := c.do(ctx, request{
		client: c.public,
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  url.Values{"grant_type": {"password"}},
		body: map[string]any{
			"email":                creds.Email,
			"password":             creds.Password,
			"gotrue_meta_security": captcha(creds.CaptchaToken),
		},
		out: &session,
	})
	if err != nil {
		return nil, err
	}
	return c.storeSession(session)
}

// SignUp creates an account. The session is nil when the backend requires
// the email address to be confirmed first.
func (c *Client) SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error) {
	name := params.Name
	if name == "" {
		name = params.Email
	}

	query := url.Values{}
	if c.redirectURL != "" {
		query.Set("redirect_to", c.redirectURL)
	}

	var raw json.RawMessage
	err := c.do(ctx, request{
		client: c.public,
		method: http.MethodPost,
		path:   authPath + "/signup",
		query:  query,
		body: map[string]any{
			"email":    params.Email,
			"password": params.Password,
			"data": map[string]string{
				"name":     name,
				"whatsapp": params.Whatsapp,
			},
			"gotrue_meta_security": captcha(params.CaptchaToken),
		},
		out: &raw,
	})
	if err != nil {
		return nil, err
	}
	return c.decodeAuthResponse(raw)
}

// VerifyOTP confirms an emailed one-time code and stores the resulting session.
func (c *Client) VerifyOTP(ctx context.Context, email, token string, otpType OTPType) (*AuthResponse, error) {
	if otpType == "" {
		otpType = OTPSignup
	}
	var raw json.RawMessage
	err := c.do(ctx, request{
		client: c.public,
		method: http.MethodPost,
		path:   authPath + "/verify",
		body:   map[string]string{"email": email, "token": token, "type": string(otpType)},
		out:    &raw,
	})
	if err != nil {
		return nil, err
	}
	return c.decodeAuthResponse(raw)
}

// ExchangeCodeForSession completes an email-link or PKCE flow.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*AuthResponse, error) {
	var session Session
	err := c.do(ctx, request{
		client: c.public,
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  url.Values{"grant_type": {"pkce"}},
		body:   map[string]string{"auth_code": code, "code_verifier": codeVerifier},
		out:    &session,
	})
	if err != nil {
		return nil, err
	}
	return c.storeSession(session)
}

// SetSession adopts a session obtained elsewhere (for example through the
// relay). An expired access token is refreshed first.
func (c *Client) SetSession(ctx context.Context, session Session) (*AuthResponse, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}
	if !session.HasTokens() {
		return nil, fmt.Errorf("%w: session requires access and refresh tokens", apperrors.ErrInvalidRequest)
	}

	claims, err := ParseClaims(session.AccessToken)
	if err != nil {
		return nil, err
	}
	if claims.ExpiredAt(c.now()) {
		return c.refresh(ctx, session.RefreshToken)
	}

	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if session.User == nil {
		session.User = claims.User()
	}
	if session.TokenType == "" {
		session.TokenType = "bearer"
	}
	if err := c.sessions.Save(session); err != nil {
		return nil, fmt.Errorf("[backend SetSession] save session: %w", err)
	}
	return &AuthResponse{User: session.User, Session: &session}, nil
}

// GetSession returns the stored session, refreshing it when expired. It
// returns nil without error when signed out.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}
	session, ok := c.sessions.Load()
	if !ok {
		return nil, nil
	}
	if session.ExpiresAt != 0 && !c.now().Before(session.Expiry()) {
		res, err := c.refresh(ctx, session.RefreshToken)
		if err != nil {
			return nil, err
		}
		return res.Session, nil
	}
	return session, nil
}

// CurrentUser re-derives the authenticated identity from the stored session.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.ErrNoSession
	}

	if c.verifier != nil {
		claims, err := c.verifier.Verify(ctx, session.AccessToken)
		if err != nil {
			return nil, err
		}
		return claims.User(), nil
	}

	var user User
	err = c.do(ctx, request{client: c.authed, method: http.MethodGet, path: authPath + "/user", out: &user})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdatePassword changes the password of the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	session, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return apperrors.ErrNoSession
	}
	return c.do(ctx, request{
		client: c.authed,
		method: http.MethodPut,
		path:   authPath + "/user",
		body:   map[string]string{"password": newPassword},
		out:    &User{},
	})
}

// SignOut revokes the session server-side and always clears local state.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.Ready(); err != nil {
		return err
	}
	var revokeErr error
	if _, ok := c.sessions.Load(); ok {
		revokeErr = c.do(ctx, request{client: c.authed, method: http.MethodPost, path: authPath + "/logout"})
		var apiErr *APIError
		if errors.As(revokeErr, &apiErr) && (apiErr.Status == http.StatusUnauthorized ||
			apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusNotFound) {
			revokeErr = nil
		}
	}
	return apperrors.Join(revokeErr, c.sessions.Clear())
}

// ResetPasswordForEmail sends a password reset link that returns to redirectTo.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return c.do(ctx, request{
		client: c.public,
		method: http.MethodPost,
		path:   authPath + "/recover",
		query:  query,
		body:   map[string]string{"email": email},
	})
}

// ResendConfirmation re-sends the sign-up confirmation email.
func (c *Client) ResendConfirmation(ctx context.Context, email, captchaToken string) error {
	query := url.Values{}
	if c.redirectURL != "" {
		query.Set("redirect_to", c.redirectURL)
	}
	return c.do(ctx, request{
		client: c.public,
		method: http.MethodPost,
		path:   authPath + "/resend",
		query:  query,
		body: map[string]any{
			"type":                 string(OTPSignup),
			"email":                email,
			"gotrue_meta_security": captcha(captchaToken),
		},
	})
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var session Session
	err := c.do(ctx, request{
		client: c.public,
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
		out:    &session,
	})
	if err != nil {
		return nil, err
	}
	return c.storeSession(session)
}

func (c *Client) decodeAuthResponse(raw json.RawMessage) (*AuthResponse, error) {
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("[backend] decode auth response: %w", err)
	}
	if session.AccessToken != "" {
		return c.storeSession(session)
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("[backend] decode user: %w", err)
	}
	return &AuthResponse{User: &user}, nil
}

func (c *Client) storeSession(session Session) (*AuthResponse, error) {
	if !session.HasTokens() {
		return nil, fmt.Errorf("[backend] malformed session: missing tokens")
	}
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = c.now().Unix() + session.ExpiresIn
	}
	if session.User == nil {
		claims, err := ParseClaims(session.AccessToken)
		if err != nil {
			return nil, err
		}
		session.User = claims.User()
	}
	if err := c.sessions.Save(session); err != nil {
		return nil, fmt.Errorf("[backend] save session: %w", err)
	}
	return &AuthResponse{User: session.User, Session: &session}, nil
}
