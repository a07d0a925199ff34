package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/jrsteele09/storefront-auth/backend/backendfake"
	"github.com/jrsteele09/storefront-auth/internal/config"
	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
	"github.com/jrsteele09/storefront-auth/internal/utils"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "shopper@example.com"
	testPassword = "s3cret-pass"
)

type testFixture struct {
	fake   *backendfake.Server
	store  *backend.MemorySessionStore
	client *backend.Client
}

func setupTestFixture(t *testing.T, opts backendfake.Options, clientOpts ...backend.Option) *testFixture {
	t.Helper()
	fake := backendfake.Start(opts)
	t.Cleanup(fake.Close)

	store := backend.NewMemorySessionStore()
	return &testFixture{
		fake:   fake,
		store:  store,
		client: backend.New(fake.Config(), store, clientOpts...),
	}
}

func TestMissingConfigurationFailsBeforeNetwork(t *testing.T) {
	fake := backendfake.Start(backendfake.Options{})
	defer fake.Close()

	c := backend.New(config.NewWithFile(config.FileValues{}), nil)
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, backend.Credentials{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, apperrors.ErrNotConfigured)
	_, err = c.GetProfile(ctx, "id")
	require.ErrorIs(t, err, apperrors.ErrNotConfigured)
	_, err = c.SetSession(ctx, backend.Session{AccessToken: "a", RefreshToken: "b"})
	require.ErrorIs(t, err, apperrors.ErrNotConfigured)
	require.ErrorIs(t, c.SignOut(ctx), apperrors.ErrNotConfigured)
	require.Zero(t, fake.TotalCalls())
}

func TestSignInWithPassword(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	userID := f.fake.CreateUser(testEmail, testPassword, true)

	res, err := f.client.SignInWithPassword(context.Background(), backend.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, userID, res.User.ID)
	require.NotNil(t, res.Session)

	stored, ok := f.store.Load()
	require.True(t, ok)
	require.True(t, stored.SameTokens(*res.Session))
	require.NotZero(t, stored.ExpiresAt)
}

func TestSignInRejections(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  bool
		sentinel error
		code     string
	}{
		{name: "wrong password", password: "wrong", confirm: true, sentinel: apperrors.ErrInvalidCredentials, code: "invalid_credentials"},
		{name: "unconfirmed", password: testPassword, confirm: false, sentinel: apperrors.ErrEmailNotConfirmed, code: "email_not_confirmed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, backendfake.Options{})
			f.fake.CreateUser(testEmail, testPassword, tt.confirm)

			_, err := f.client.SignInWithPassword(context.Background(), backend.Credentials{Email: testEmail, Password: tt.password})
			require.ErrorIs(t, err, tt.sentinel)

			var apiErr *backend.APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.code, apiErr.Code)
			require.Equal(t, http.StatusBadRequest, apiErr.Status)

			_, ok := f.store.Load()
			require.False(t, ok)
		})
	}
}

func TestSignUp(t *testing.T) {
	t.Run("session issued immediately", func(t *testing.T) {
		f := setupTestFixture(t, backendfake.Options{})
		res, err := f.client.SignUp(context.Background(), backend.SignUpParams{
			Credentials: backend.Credentials{Email: testEmail, Password: testPassword},
			Name:        "Bee",
		})
		require.NoError(t, err)
		require.NotNil(t, res.Session)
		require.Equal(t, "Bee", res.User.UserMetadata["name"])
		_, ok := f.store.Load()
		require.True(t, ok)
	})

	t.Run("confirmation required", func(t *testing.T) {
		f := setupTestFixture(t, backendfake.Options{RequireConfirmation: true})
		res, err := f.client.SignUp(context.Background(), backend.SignUpParams{
			Credentials: backend.Credentials{Email: testEmail, Password: testPassword},
		})
		require.NoError(t, err)
		require.Nil(t, res.Session)
		require.NotEmpty(t, res.User.ID)
		require.Equal(t, testEmail, res.User.UserMetadata["name"])
		_, ok := f.store.Load()
		require.False(t, ok)
	})
}

func TestVerifyOTP(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{RequireConfirmation: true})
	_, err := f.client.SignUp(context.Background(), backend.SignUpParams{
		Credentials: backend.Credentials{Email: testEmail, Password: testPassword},
	})
	require.NoError(t, err)

	_, err = f.client.VerifyOTP(context.Background(), testEmail, "000000", "")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "otp_expired", apiErr.Code)

	res, err := f.client.VerifyOTP(context.Background(), testEmail, backendfake.DefaultOTP, backend.OTPSignup)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
}

func TestSetSessionMirrorsIdempotently(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	userID := f.fake.CreateUser(testEmail, testPassword, true)
	session := f.fake.IssueSession(testEmail)
	session.User = nil

	first, err := f.client.SetSession(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, userID, first.User.ID)
	once, _ := f.store.Load()

	_, err = f.client.SetSession(context.Background(), session)
	require.NoError(t, err)
	twice, _ := f.store.Load()
	require.Equal(t, once, twice)

	user, err := f.client.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, userID, user.ID)
}

func TestSetSessionRefreshesExpiredToken(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	userID := f.fake.CreateUser(testEmail, testPassword, true)
	session := f.fake.IssueSession(testEmail)
	session.AccessToken = f.fake.SignAccessToken(userID, testEmail, -time.Minute)

	res, err := f.client.SetSession(context.Background(), session)
	require.NoError(t, err)
	require.NotEqual(t, session.AccessToken, res.Session.AccessToken)
	require.Equal(t, 1, f.fake.Calls(backendfake.RouteTokenRefresh))
}

func TestSetSessionRequiresTokens(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	_, err := f.client.SetSession(context.Background(), backend.Session{AccessToken: "only-access"})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestCurrentUser(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t, backendfake.Options{})
		_, err := f.client.CurrentUser(context.Background())
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("verified locally", func(t *testing.T) {
		fake := backendfake.Start(backendfake.Options{})
		defer fake.Close()
		verifier := backend.NewStaticTokenVerifier(fake.Issuer(), fake.PublicKey())
		store := backend.NewMemorySessionStore()
		c := backend.New(fake.Config(), store, backend.WithVerifier(verifier))

		userID := fake.CreateUser(testEmail, testPassword, true)
		require.NoError(t, store.Save(fake.IssueSession(testEmail)))

		user, err := c.CurrentUser(context.Background())
		require.NoError(t, err)
		require.Equal(t, userID, user.ID)
		require.Equal(t, testEmail, user.Email)
		require.Zero(t, fake.Calls(backendfake.RouteUserGet))
	})

	t.Run("forged token rejected by verifier", func(t *testing.T) {
		fake := backendfake.Start(backendfake.Options{})
		defer fake.Close()
		other := backendfake.Start(backendfake.Options{})
		defer other.Close()

		verifier := backend.NewStaticTokenVerifier(fake.Issuer(), fake.PublicKey())
		store := backend.NewMemorySessionStore()
		c := backend.New(fake.Config(), store, backend.WithVerifier(verifier))

		other.CreateUser(testEmail, testPassword, true)
		require.NoError(t, store.Save(other.IssueSession(testEmail)))

		_, err := c.CurrentUser(context.Background())
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

func TestSignOutClearsSession(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	f.fake.CreateUser(testEmail, testPassword, true)
	_, err := f.client.SignInWithPassword(context.Background(), backend.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, f.client.SignOut(context.Background()))
	_, ok := f.store.Load()
	require.False(t, ok)
	require.Equal(t, 1, f.fake.Calls(backendfake.RouteLogout))
}

func TestUpdatePassword(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	f.fake.CreateUser(testEmail, testPassword, true)
	ctx := context.Background()

	require.ErrorIs(t, f.client.UpdatePassword(ctx, "n3w-password"), apperrors.ErrNoSession)

	_, err := f.client.SignInWithPassword(ctx, backend.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	var apiErr *backend.APIError
	require.ErrorAs(t, f.client.UpdatePassword(ctx, "123"), &apiErr)
	require.Equal(t, "weak_password", apiErr.Code)

	require.NoError(t, f.client.UpdatePassword(ctx, "n3w-password"))
	_, err = backend.New(f.fake.Config(), nil).SignInWithPassword(ctx, backend.Credentials{Email: testEmail, Password: "n3w-password"})
	require.NoError(t, err)
}

func TestEmailFlows(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{}, backend.WithRedirectURL("http://localhost:3000/auth/callback"))
	ctx := context.Background()

	require.NoError(t, f.client.ResetPasswordForEmail(ctx, testEmail, "http://localhost:3000/reset"))
	require.NoError(t, f.client.ResendConfirmation(ctx, testEmail, "captcha"))
	require.Equal(t, 1, f.fake.Calls(backendfake.RouteRecover))
	require.Equal(t, 1, f.fake.Calls(backendfake.RouteResend))
}

func TestProfileOperations(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{DisableProfileTrigger: true})
	userID := f.fake.CreateUser(testEmail, testPassword, true)
	_, err := f.client.SignInWithPassword(context.Background(), backend.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.client.GetProfile(ctx, userID)
	require.True(t, backend.IsNoRows(err))

	_, err = f.client.UpdateProfile(ctx, userID, backend.ProfileUpdates{Name: utils.Ptr("Bee")})
	require.True(t, backend.IsNoRows(err))

	inserted, err := f.client.InsertProfile(ctx, backend.Profile{ID: userID, Email: testEmail, Name: "Bee"})
	require.NoError(t, err)
	require.Equal(t, "Bee", inserted.Name)

	updated, err := f.client.UpdateProfile(ctx, userID, backend.ProfileUpdates{Whatsapp: utils.Ptr("+5511999999999")})
	require.NoError(t, err)
	require.Equal(t, "Bee", updated.Name)
	require.Equal(t, "+5511999999999", updated.Whatsapp)

	upserted, err := f.client.UpsertProfile(ctx, backend.Profile{ID: userID, Name: "Bea", Whatsapp: "1"})
	require.NoError(t, err)
	require.Equal(t, testEmail, upserted.Email)
	require.Equal(t, "Bea", upserted.Name)

	require.NoError(t, f.client.Ping(ctx))
}

func TestProfileRowAppearsAfterTriggerDelay(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{ProfileDelayReads: 2})
	res, err := f.client.SignUp(context.Background(), backend.SignUpParams{
		Credentials: backend.Credentials{Email: testEmail, Password: testPassword},
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.client.GetProfile(context.Background(), res.User.ID)
		require.True(t, backend.IsNoRows(err))
	}
	p, err := f.client.GetProfile(context.Background(), res.User.ID)
	require.NoError(t, err)
	require.Equal(t, testEmail, p.Email)
}

func TestAPIErrorDecoding(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		code     string
		message  string
		sentinel error
	}{
		{name: "auth service", status: 400, body: `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`,
			code: "invalid_credentials", message: "Invalid login credentials", sentinel: apperrors.ErrInvalidCredentials},
		{name: "oauth style", status: 400, body: `{"error":"invalid_grant","error_description":"Email not confirmed"}`,
			code: "invalid_grant", message: "Email not confirmed"},
		{name: "data api", status: 406, body: `{"code":"PGRST116","message":"JSON object requested","details":"The result contains 0 rows","hint":null}`,
			code: "PGRST116", message: "JSON object requested", sentinel: apperrors.ErrNoRows},
		{name: "rate limited", status: 429, body: `{"code":429,"error_code":"over_request_rate_limit","msg":"Too many requests"}`,
			code: "over_request_rate_limit", message: "Too many requests", sentinel: apperrors.ErrRateLimited},
		{name: "plain text", status: 502, body: `Bad Gateway`, message: "Bad Gateway"},
		{name: "empty", status: 503, message: "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			fake := backendfake.Start(backendfake.Options{})
			defer fake.Close()
			var file config.FileValues
			file.Backend.URL = srv.URL
			file.Backend.AnonKey = fake.AnonKey()

			err := backend.New(config.NewWithFile(file), nil).Ping(context.Background())
			var apiErr *backend.APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.status, apiErr.Status)
			require.Equal(t, tt.code, apiErr.Code)
			require.Equal(t, tt.message, apiErr.Error())
			if tt.sentinel != nil {
				require.True(t, errors.Is(err, tt.sentinel))
			}
		})
	}
}

func TestNetworkFailureIsWrapped(t *testing.T) {
	fake := backendfake.Start(backendfake.Options{})
	cfg := fake.Config()
	fake.Close()

	_, err := backend.New(cfg, nil).SignInWithPassword(context.Background(), backend.Credentials{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, apperrors.ErrNetwork)
}
