package config

import (
	"os"
	"time"
)

const configFileEnvVar = "CONFIG_FILE"

type Config interface {
	EnvConfig
	CorsConfig
	BackendConfig
	AuthFlowConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// BackendConfig holds the connection parameters of the managed backend.
type BackendConfig interface {
	GetBackendURL() string
	GetBackendAnonKey() string
	GetBackendJWKSURL() string
}

type AuthFlowConfig interface {
	GetSiteURL() string
	GetRelayURL() string
	GetCaptchaSiteKey() string
	GetCaptchaSignInEnabled() bool
	GetSignInTimeout() time.Duration
	GetProfileFetchTimeout() time.Duration
	GetSessionCookieName() string
	GetSessionMaxAge() time.Duration
}

type mainConfig struct {
	EnvVars
	Cors
}

// New loads the optional YAML file named by CONFIG_FILE and layers the
// environment over it.
func New() (Config, error) {
	file, err := LoadFile(os.Getenv(configFileEnvVar))
	if err != nil {
		return nil, err
	}
	return NewWithFile(file), nil
}

// NewWithFile builds a Config from already-loaded file values. Environment
// variables still take precedence.
func NewWithFile(file FileValues) Config {
	f := &file
	return mainConfig{
		EnvVars: EnvVars{file: f},
		Cors:    Cors{file: f},
	}
}
