package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// FileValues mirrors the optional YAML configuration file. Any value left
// empty falls back to the built-in default.
type FileValues struct {
	Port     string `yaml:"port"`
	AppName  string `yaml:"app_name"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	SiteURL  string `yaml:"site_url"`
	RelayURL string `yaml:"relay_url"`

	Backend struct {
		URL     string `yaml:"url"`
		AnonKey string `yaml:"anon_key"`
		JWKSURL string `yaml:"jwks_url"`
	} `yaml:"backend"`

	Captcha struct {
		SiteKey       string `yaml:"site_key"`
		SignInEnabled bool   `yaml:"signin_enabled"`
	} `yaml:"captcha"`

	SignInTimeout       string   `yaml:"signin_timeout"`
	ProfileFetchTimeout string   `yaml:"profile_fetch_timeout"`
	SessionCookieName   string   `yaml:"session_cookie_name"`
	SessionMaxAge       string   `yaml:"session_max_age"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
}

// LoadFile reads a YAML config file. An empty path or a file that does not
// exist yields empty values without error; a file that exists but cannot be
// read or parsed is an error.
func LoadFile(path string) (FileValues, error) {
	var values FileValues
	if path == "" {
		return values, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return values, fmt.Errorf("[config LoadFile] read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &values); err != nil {
		return FileValues{}, fmt.Errorf("[config LoadFile] parse %s: %w", path, err)
	}
	return values, nil
}
