package server_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/storefront-auth/auth"
	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/jrsteele09/storefront-auth/backend/backendfake"
	"github.com/jrsteele09/storefront-auth/internal/config"
	"github.com/jrsteele09/storefront-auth/profiles"
	"github.com/jrsteele09/storefront-auth/relayclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// unreachableConfig points at the fake's key but a closed listener, so only
// the relay path can succeed.
func unreachableConfig(f *testFixture) config.Config {
	closed := httptest.NewServer(nil)
	closed.Close()

	var file config.FileValues
	file.Backend.URL = closed.URL
	file.Backend.AnonKey = f.fake.AnonKey()
	return config.NewWithFile(file)
}

func TestOrchestratorRelayWinsAndMirrors(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	userID := f.fake.CreateUser(testEmail, testPassword, true)

	direct := backend.New(unreachableConfig(f), nil)
	o := auth.New(f.cfg, direct, relayclient.New(f.srv.URL), nil, auth.WithLogger(zerolog.Nop()))

	res, err := o.SignIn(context.Background(), auth.Credential{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, auth.ChannelRelay, res.Channel)
	require.Equal(t, userID, res.User.ID)
	o.Wait()

	stored, ok := direct.Sessions().Load()
	require.True(t, ok)
	require.True(t, stored.SameTokens(*res.Session))
}

func TestOrchestratorBothChannelsRejected(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})
	f.fake.CreateUser(testEmail, testPassword, true)

	direct := backend.New(f.cfg, nil)
	o := auth.New(f.cfg, direct, relayclient.New(f.srv.URL), nil, auth.WithLogger(zerolog.Nop()))

	_, err := o.SignIn(context.Background(), auth.Credential{Email: testEmail, Password: "wrong-pass"})
	require.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
	o.Wait()
	require.Equal(t, 2, f.fake.Calls(backendfake.RouteTokenPassword))
}

func TestOrchestratorSignUpThroughRelay(t *testing.T) {
	f := setupTestFixture(t, backendfake.Options{})

	direct := backend.New(f.cfg, nil)
	o := auth.New(f.cfg, direct, relayclient.New(f.srv.URL), profiles.New(direct), auth.WithLogger(zerolog.Nop()))

	res, err := o.SignUp(context.Background(), auth.SignUpRequest{
		Credential: auth.Credential{Email: testEmail, Password: testPassword},
		Name:       "Bee",
		Whatsapp:   "+5511999999999",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	o.Wait()

	_, ok := direct.Sessions().Load()
	require.True(t, ok)

	profile, err := profiles.New(direct).Get(context.Background(), res.User.ID)
	require.NoError(t, err)
	require.Equal(t, "Bee", profile.Name)
	require.Equal(t, "+5511999999999", profile.Whatsapp)
}
