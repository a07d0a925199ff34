// Package relayclient calls this service's own relay routes, which perform
// auth operations server-side and hand back the resulting session.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/jrsteele09/storefront-auth/backend"
	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
)

const (
	SignInPath    = "/api/auth/signin"
	SignUpPath    = "/api/auth/signup"
	VerifyOTPPath = "/api/auth/verify-otp"
)

// Error is a non-2xx relay response.
type Error struct {
	Status     int    // relay response status
	Message    string `json:"error"`
	Code       int    `json:"code,omitempty"` // backend status behind the failure
	BackendErr string `json:"error_code,omitempty"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("relay request failed with status %d", e.Status)
}

// Unwrap maps the backend failure behind the relay response onto the shared
// sentinels.
func (e *Error) Unwrap() error {
	if e.Code == 0 && e.BackendErr == "" {
		return nil
	}
	return (&backend.APIError{Status: e.Code, Code: e.BackendErr, Message: e.Message}).Unwrap()
}

// Client talks to the relay routes. Its cookie jar holds whatever session
// cookies the relay sets.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Client) { r.http = c }
}

func New(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type signInBody struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

type signUpBody struct {
	signInBody
	Name     string `json:"name,omitempty"`
	Whatsapp string `json:"whatsapp,omitempty"`
}

type verifyBody struct {
	Email string `json:"email"`
	Token string `json:"token"`
	Type  string `json:"type,omitempty"`
}

func (c *Client) SignIn(ctx context.Context, creds backend.Credentials) (*backend.AuthResponse, error) {
	return c.post(ctx, SignInPath, signInBody{Email: creds.Email, Password: creds.Password, CaptchaToken: creds.CaptchaToken})
}

func (c *Client) SignUp(ctx context.Context, params backend.SignUpParams) (*backend.AuthResponse, error) {
	return c.post(ctx, SignUpPath, signUpBody{
		signInBody: signInBody{Email: params.Email, Password: params.Password, CaptchaToken: params.CaptchaToken},
		Name:       params.Name,
		Whatsapp:   params.Whatsapp,
	})
}

func (c *Client) VerifyOTP(ctx context.Context, email, token string, otpType backend.OTPType) (*backend.AuthResponse, error) {
	return c.post(ctx, VerifyOTPPath, verifyBody{Email: email, Token: token, Type: string(otpType)})
}

func (c *Client) post(ctx context.Context, path string, body any) (*backend.AuthResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("[relay] encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("[relay] build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: relay %s: %w", apperrors.ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: relay %s: %w", apperrors.ErrNetwork, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		relayErr := &Error{Status: resp.StatusCode}
		if json.Unmarshal(payload, relayErr) != nil || relayErr.Message == "" {
			relayErr.Message = strings.TrimSpace(string(payload))
		}
		return nil, relayErr
	}

	var out backend.AuthResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("[relay] decode %s: %w", path, err)
	}
	if out.User == nil {
		return nil, fmt.Errorf("[relay] %s: response has no user", path)
	}
	return &out, nil
}
