package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/storefront-auth/auth"
	"github.com/jrsteele09/storefront-auth/backend"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	url     string
	anonKey string
	captcha bool
	timeout time.Duration
}

func (c testConfig) GetBackendURL() string           { return c.url }
func (c testConfig) GetBackendAnonKey() string       { return c.anonKey }
func (c testConfig) GetBackendJWKSURL() string       { return "" }
func (c testConfig) GetCaptchaSignInEnabled() bool   { return c.captcha }
func (c testConfig) GetSignInTimeout() time.Duration { return c.timeout }

func validConfig(t *testing.T) testConfig {
	t.Helper()
	key, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "anon"}).SignedString([]byte("anon"))
	require.NoError(t, err)
	return testConfig{url: "https://project.backend.test", anonKey: key, timeout: 2 * time.Second}
}

type authFunc func(ctx context.Context) (*backend.AuthResponse, error)

// after resolves with res/err once d has elapsed.
func after(d time.Duration, res *backend.AuthResponse, err error) authFunc {
	return func(ctx context.Context) (*backend.AuthResponse, error) {
		select {
		case <-time.After(d):
			return res, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// blocked resolves with res/err only once release is closed.
func blocked(release <-chan struct{}, res *backend.AuthResponse, err error) authFunc {
	return func(ctx context.Context) (*backend.AuthResponse, error) {
		<-release
		return res, err
	}
}

type stubDirect struct {
	signIn authFunc
	store  *backend.MemorySessionStore
	setErr error

	mu       sync.Mutex
	mirrored []backend.Session
	signIns  atomic.Int32
}

func newStubDirect(signIn authFunc) *stubDirect {
	return &stubDirect{signIn: signIn, store: backend.NewMemorySessionStore()}
}

func (d *stubDirect) SignInWithPassword(ctx context.Context, _ backend.Credentials) (*backend.AuthResponse, error) {
	d.signIns.Add(1)
	res, err := d.signIn(ctx)
	if err != nil {
		return nil, err
	}
	if res.Session != nil {
		_ = d.store.Save(*res.Session)
	}
	return res, nil
}

func (d *stubDirect) SetSession(_ context.Context, s backend.Session) (*backend.AuthResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setErr != nil {
		return nil, d.setErr
	}
	d.mirrored = append(d.mirrored, s)
	_ = d.store.Save(s)
	return &backend.AuthResponse{User: s.User, Session: &s}, nil
}

func (d *stubDirect) mirrorCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mirrored)
}

type stubRelay struct {
	signIn  authFunc
	signUp  authFunc
	signIns atomic.Int32
	signUps atomic.Int32

	mu         sync.Mutex
	lastSignUp backend.SignUpParams
}

func (r *stubRelay) SignIn(ctx context.Context, _ backend.Credentials) (*backend.AuthResponse, error) {
	r.signIns.Add(1)
	return r.signIn(ctx)
}

func (r *stubRelay) SignUp(ctx context.Context, params backend.SignUpParams) (*backend.AuthResponse, error) {
	r.signUps.Add(1)
	r.mu.Lock()
	r.lastSignUp = params
	r.mu.Unlock()
	return r.signUp(ctx)
}

func sessionFor(id, email, token string) *backend.AuthResponse {
	user := &backend.User{ID: id, Email: email}
	return &backend.AuthResponse{
		User:    user,
		Session: &backend.Session{AccessToken: token, RefreshToken: "refresh-" + token, User: user},
	}
}

// stubProfiles makes the row visible from the visibleFrom-th read onwards.
type stubProfiles struct {
	visibleFrom int
	updateErr   error

	mu      sync.Mutex
	reads   int
	updates []backend.ProfileUpdates
}

func (p *stubProfiles) Get(_ context.Context, id string) (*backend.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.visibleFrom == 0 || p.reads < p.visibleFrom {
		return nil, &backend.APIError{Status: 406, Code: backend.NoRowsCode, Message: "JSON object requested, multiple (or no) rows returned"}
	}
	return &backend.Profile{ID: id}, nil
}

func (p *stubProfiles) Update(_ context.Context, id string, updates backend.ProfileUpdates) (*backend.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, updates)
	if p.updateErr != nil {
		return nil, p.updateErr
	}
	profile := updates.ApplyTo(backend.Profile{ID: id})
	return &profile, nil
}

func (p *stubProfiles) counts() (int, []backend.ProfileUpdates) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads, append([]backend.ProfileUpdates(nil), p.updates...)
}

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type recordingUsers struct {
	err error

	mu      sync.Mutex
	results []*auth.Result
}

func (u *recordingUsers) Record(_ context.Context, res *auth.Result) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.results = append(u.results, res)
	return u.err
}

func (u *recordingUsers) recorded() []*auth.Result {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*auth.Result(nil), u.results...)
}
