package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/storefront-auth/auth"
	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/jrsteele09/storefront-auth/backend/backendfake"
	"github.com/jrsteele09/storefront-auth/internal/config"
	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
	"github.com/jrsteele09/storefront-auth/relayclient"
	"github.com/jrsteele09/storefront-auth/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "shopper@example.com"
	testPassword = "s3cret-pass"
)

type testFixture struct {
	fake *backendfake.Server
	srv  *httptest.Server
	cfg  config.Config
}

func setupTestFixture(t *testing.T, opts backendfake.Options) *testFixture {
	t.Helper()
	fake := backendfake.Start(opts)
	t.Cleanup(fake.Close)

	cfg := fake.Config()
	srv := httptest.NewServer(server.New(cfg, server.WithLogger(zerolog.Nop())))
	t.Cleanup(srv.Close)
	return &testFixture{fake: fake, srv: srv, cfg: cfg}
}

func (f *testFixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errorBody struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == config.DefaultSessionCookieName {
			return c
		}
	}
	return nil
}

func TestRelaySignIn(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	userID := f.fake.CreateUser(testEmail, testPassword, true)

	resp := f.post(t, server.RouteAPISignIn, map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeJSON[backend.AuthResponse](t, resp)
	require.Equal(t, userID, res.User.ID)
	require.NotNil(t, res.Session)
	require.True(t, res.Session.HasTokens())

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Equal(t, int(config.DefaultSessionMaxAge.Seconds()), cookie.MaxAge)
}

func TestRelaySignInRejected(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	f.fake.CreateUser(testEmail, testPassword, true)

	_, err := relayclient.New(f.srv.URL).SignIn(context.Background(), backend.Credentials{Email: testEmail, Password: "wrong-pass"})
	var relayErr *relayclient.Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, http.StatusUnauthorized, relayErr.Status)
	require.Equal(t, http.StatusBadRequest, relayErr.Code)
	require.Equal(t, "invalid_credentials", relayErr.BackendErr)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestRelaySignInUnconfirmed(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	f.fake.CreateUser(testEmail, testPassword, false)

	_, err := relayclient.New(f.srv.URL).SignIn(context.Background(), backend.Credentials{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, apperrors.ErrEmailNotConfirmed)
	require.Equal(t, auth.KindEmailNotConfirmed, auth.KindOf(auth.Classify(err)))
}

func TestRelayRequiresFields(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})

	tests := []struct {
		name    string
		path    string
		body    any
		message string
	}{
		{name: "sign-in without password", path: server.RouteAPISignIn, body: map[string]string{"email": testEmail}, message: "Email and password are required"},
		{name: "sign-up without email", path: server.RouteAPISignUp, body: map[string]string{"password": testPassword}, message: "Email and password are required"},
		{name: "verify without code", path: server.RouteAPIVerifyOTP, body: map[string]string{"email": testEmail}, message: "Email and code are required"},
		{name: "malformed body", path: server.RouteAPISignIn, body: "not an object", message: "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, tt.message, decodeJSON[errorBody](t, resp).Error)
		})
	}
	require.Zero(t, f.fake.TotalCalls())
}

func TestRelayWithoutConfiguration(t *testing.T) {
	srv := httptest.NewServer(server.New(config.NewWithFile(config.FileValues{}), server.WithLogger(zerolog.Nop())))
	defer srv.Close()

	_, err := relayclient.New(srv.URL).SignIn(context.Background(), backend.Credentials{Email: testEmail, Password: testPassword})
	var relayErr *relayclient.Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, http.StatusInternalServerError, relayErr.Status)
	require.Equal(t, auth.KindConfiguration, auth.Classify(err).Kind)
}

func TestRelaySignUpSeedsProfile(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})

	res, err := relayclient.New(f.srv.URL).SignUp(context.Background(), backend.SignUpParams{
		Credentials: backend.Credentials{Email: testEmail, Password: testPassword},
		Name:        "Bee",
		Whatsapp:    "+5511999999999",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Session)

	profile, ok := f.fake.Profile(res.User.ID)
	require.True(t, ok)
	require.Equal(t, backend.Profile{ID: res.User.ID, Email: testEmail, Name: "Bee", Whatsapp: "+5511999999999"}, profile)
}

func TestRelaySignUpNameDefaultsToEmail(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})

	res, err := relayclient.New(f.srv.URL).SignUp(context.Background(), backend.SignUpParams{
		Credentials: backend.Credentials{Email: testEmail, Password: testPassword},
	})
	require.NoError(t, err)

	profile, ok := f.fake.Profile(res.User.ID)
	require.True(t, ok)
	require.Equal(t, testEmail, profile.Name)
	require.Empty(t, profile.Whatsapp)
}

func TestRelaySignUpAwaitingConfirmation(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{RequireConfirmation: true})

	resp := f.post(t, server.RouteAPISignUp, map[string]string{"email": testEmail, "password": testPassword, "name": "Bee"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeJSON[backend.AuthResponse](t, resp)
	require.NotNil(t, res.User)
	require.Nil(t, res.Session)
	require.Nil(t, sessionCookie(resp))
	// The anonymous upsert is refused; the sign-up still succeeds.
	require.Equal(t, 1, f.fake.Calls(backendfake.RouteProfilePost))
}

func TestRelaySignUpRejected(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})

	resp := f.post(t, server.RouteAPISignUp, map[string]string{"email": testEmail, "password": "123"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeJSON[errorBody](t, resp)
	require.Equal(t, http.StatusUnprocessableEntity, body.Code)
	require.Equal(t, "weak_password", body.ErrorCode)
	require.Zero(t, f.fake.Calls(backendfake.RouteProfilePost))
}

func TestRelayVerifyOTP(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	userID := f.fake.CreateUser(testEmail, testPassword, false)
	relay := relayclient.New(f.srv.URL)

	_, err := relay.VerifyOTP(context.Background(), testEmail, "000000", "")
	var relayErr *relayclient.Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, http.StatusBadRequest, relayErr.Status)
	require.Equal(t, "otp_expired", relayErr.BackendErr)

	res, err := relay.VerifyOTP(context.Background(), testEmail, backendfake.DefaultOTP, "")
	require.NoError(t, err)
	require.Equal(t, userID, res.User.ID)
	require.NotNil(t, res.Session)

	_, err = relay.SignIn(context.Background(), backend.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
}

func TestRoutes(t *testing.T) {
	s := server.New(config.NewWithFile(config.FileValues{}), server.WithLogger(zerolog.Nop()))
	require.Contains(t, s.Routes(), "POST "+server.RouteAPISignIn)
	require.Contains(t, s.Routes(), "POST "+server.RouteAPISignUp)
	require.Contains(t, s.Routes(), "POST "+server.RouteAPIVerifyOTP)
	require.Contains(t, s.Routes(), "GET "+server.RouteAuthCallback)
	require.Contains(t, s.Routes(), "GET "+server.RouteConfigCheck)
}
