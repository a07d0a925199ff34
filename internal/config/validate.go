package config

import (
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
)

// ValidationError lists every problem found with the backend connection
// parameters. It unwraps to ErrNotConfigured.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return apperrors.ErrNotConfigured.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrNotConfigured
}

// BackendReport is the outcome of checking the backend connection parameters.
type BackendReport struct {
	Configured bool     `json:"configured"`
	Problems   []string `json:"problems,omitempty"`
	URL        string   `json:"url,omitempty"`
	URLPresent bool     `json:"url_present"`
	KeyPresent bool     `json:"key_present"`
	URLValid   bool     `json:"url_valid"`
	KeyValid   bool     `json:"key_valid"`
}

// CheckBackend inspects the URL and anon key without touching the network.
func CheckBackend(c BackendConfig) BackendReport {
	report := BackendReport{
		URL:        c.GetBackendURL(),
		URLPresent: c.GetBackendURL() != "",
		KeyPresent: c.GetBackendAnonKey() != "",
	}

	if !report.URLPresent {
		report.Problems = append(report.Problems, backendURLEnvVar+" is not set")
	} else if u, err := url.Parse(report.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		report.Problems = append(report.Problems, backendURLEnvVar+" must be an absolute http(s) URL")
	} else {
		report.URLValid = true
	}

	if !report.KeyPresent {
		report.Problems = append(report.Problems, backendAnonKeyEnvVar+" is not set")
	} else if _, _, err := jwt.NewParser().ParseUnverified(c.GetBackendAnonKey(), jwt.MapClaims{}); err != nil {
		report.Problems = append(report.Problems, backendAnonKeyEnvVar+" is not a JWT")
	} else {
		report.KeyValid = true
	}

	report.Configured = len(report.Problems) == 0
	return report
}

// ValidateBackend returns a *ValidationError when the backend cannot be used.
func ValidateBackend(c BackendConfig) error {
	report := CheckBackend(c)
	if report.Configured {
		return nil
	}
	return &ValidationError{Problems: report.Problems}
}
