package backend

import (
	"context"
	"crypto"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
)

// Claims are the access token claims this service relies on.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// User builds the identity the token was issued for.
func (c *Claims) User() *User {
	return &User{ID: c.Subject, Email: c.Email}
}

// ExpiredAt reports whether the token is expired at t. Tokens without exp
// never expire.
func (c *Claims) ExpiredAt(t time.Time) bool {
	return c.ExpiresAt != nil && !t.Before(c.ExpiresAt.Time)
}

// ParseClaims decodes an access token without checking its signature. It is
// only used on tokens that just arrived from the backend or the relay.
func ParseClaims(accessToken string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed access token: %w", apperrors.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: access token has no subject", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

// TokenVerifier checks access token signatures, issuer and expiry against the
// backend's signing keys.
type TokenVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewRemoteTokenVerifier fetches signing keys from the backend JWKS endpoint
// on demand.
func NewRemoteTokenVerifier(ctx context.Context, issuer, jwksURL string) *TokenVerifier {
	return newTokenVerifier(issuer, oidc.NewRemoteKeySet(ctx, jwksURL))
}

// NewStaticTokenVerifier verifies against a fixed set of public keys.
func NewStaticTokenVerifier(issuer string, keys ...crypto.PublicKey) *TokenVerifier {
	return newTokenVerifier(issuer, &oidc.StaticKeySet{PublicKeys: keys})
}

func newTokenVerifier(issuer string, keySet oidc.KeySet) *TokenVerifier {
	return &TokenVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{
			SkipClientIDCheck:    true,
			SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
		}),
	}
}

func (v *TokenVerifier) Verify(ctx context.Context, accessToken string) (*Claims, error) {
	token, err := v.verifier.Verify(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	claims := &Claims{}
	if err := token.Claims(claims); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: access token has no subject", apperrors.ErrUnauthorized)
	}
	return claims, nil
}
