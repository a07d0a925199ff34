package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar                = "PORT"
	appNameEnvVar             = "APP_NAME"
	envEnvVar                 = "ENV"
	logLevelEnvVar            = "LOG_LEVEL"
	backendURLEnvVar          = "BACKEND_URL"
	backendAnonKeyEnvVar      = "BACKEND_ANON_KEY"
	backendJWKSURLEnvVar      = "BACKEND_JWKS_URL"
	siteURLEnvVar             = "SITE_URL"
	relayURLEnvVar            = "RELAY_URL"
	captchaSiteKeyEnvVar      = "CAPTCHA_SITE_KEY"
	captchaSignInEnvVar       = "CAPTCHA_SIGNIN_ENABLED"
	signInTimeoutEnvVar       = "SIGNIN_TIMEOUT"
	profileFetchTimeoutEnvVar = "PROFILE_FETCH_TIMEOUT"
	sessionCookieNameEnvVar   = "SESSION_COOKIE_NAME"
	sessionMaxAgeEnvVar       = "SESSION_MAX_AGE"
)

const (
	DefaultSignInTimeout       = 25 * time.Second
	DefaultProfileFetchTimeout = 5 * time.Second
	DefaultSessionMaxAge       = 30 * 24 * time.Hour
	DefaultSessionCookieName   = "storefront-auth-token"
)

type EnvVars struct {
	file *FileValues
}

var (
	_ EnvConfig      = EnvVars{}
	_ BackendConfig  = EnvVars{}
	_ AuthFlowConfig = EnvVars{}
)

func (e EnvVars) values() FileValues {
	if e.file == nil {
		return FileValues{}
	}
	return *e.file
}

func (e EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, firstSet(e.values().Port, "8080"))
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameEnvVar, firstSet(e.values().AppName, "Storefront Auth"))
}

func (e EnvVars) GetEnv() string {
	return GetEnv(envEnvVar, firstSet(e.values().Env, "DEV"))
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, firstSet(e.values().LogLevel, "info"))
}

func (e EnvVars) GetBackendURL() string {
	return strings.TrimRight(GetEnv(backendURLEnvVar, e.values().Backend.URL), "/")
}

func (e EnvVars) GetBackendAnonKey() string {
	return GetEnv(backendAnonKeyEnvVar, e.values().Backend.AnonKey)
}

// GetBackendJWKSURL is optional. When empty, access tokens are decoded without
// signature verification and identity is confirmed against the backend.
func (e EnvVars) GetBackendJWKSURL() string {
	return GetEnv(backendJWKSURLEnvVar, e.values().Backend.JWKSURL)
}

func (e EnvVars) GetSiteURL() string {
	return strings.TrimRight(GetEnv(siteURLEnvVar, firstSet(e.values().SiteURL, "http://localhost:3000")), "/")
}

// GetRelayURL is the base URL the relay routes are reachable on.
func (e EnvVars) GetRelayURL() string {
	return strings.TrimRight(GetEnv(relayURLEnvVar, firstSet(e.values().RelayURL, "http://localhost"+e.GetPort())), "/")
}

func (e EnvVars) GetCaptchaSiteKey() string {
	return GetEnv(captchaSiteKeyEnvVar, e.values().Captcha.SiteKey)
}

func (e EnvVars) GetCaptchaSignInEnabled() bool {
	if v, err := strconv.ParseBool(os.Getenv(captchaSignInEnvVar)); err == nil {
		return v
	}
	return e.values().Captcha.SignInEnabled
}

func (e EnvVars) GetSignInTimeout() time.Duration {
	return getDuration(signInTimeoutEnvVar, e.values().SignInTimeout, DefaultSignInTimeout)
}

func (e EnvVars) GetProfileFetchTimeout() time.Duration {
	return getDuration(profileFetchTimeoutEnvVar, e.values().ProfileFetchTimeout, DefaultProfileFetchTimeout)
}

func (e EnvVars) GetSessionCookieName() string {
	return GetEnv(sessionCookieNameEnvVar, firstSet(e.values().SessionCookieName, DefaultSessionCookieName))
}

func (e EnvVars) GetSessionMaxAge() time.Duration {
	return getDuration(sessionMaxAgeEnvVar, e.values().SessionMaxAge, DefaultSessionMaxAge)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(envVar, fileValue string, defaultValue time.Duration) time.Duration {
	for _, raw := range []string{os.Getenv(envVar), fileValue} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func firstSet(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
