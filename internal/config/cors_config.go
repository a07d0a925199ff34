package config

import (
	"os"
	"strings"
)

const allowedOriginsEnvVar = "ALLOWED_ORIGINS"

type Cors struct {
	file *FileValues
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins reads ALLOWED_ORIGINS (comma separated), then the file.
// The storefront itself is always allowed.
func (c Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	var configured []string
	if raw := os.Getenv(allowedOriginsEnvVar); raw != "" {
		configured = strings.Split(raw, ",")
	} else if c.file != nil {
		configured = c.file.AllowedOrigins
	}
	for _, o := range configured {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = nullValue{}
		}
	}
	origins[EnvVars{file: c.file}.GetSiteURL()] = nullValue{}
	return origins
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
