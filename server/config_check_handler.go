package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/storefront-auth/internal/config"
)

const pingTimeout = 5 * time.Second

// Connection probe outcomes.
const (
	ConnectionNotTested = "not_tested"
	ConnectionSkipped   = "skipped"
	ConnectionSuccess   = "success"
	ConnectionError     = "error"
)

type ConfigCheckResponse struct {
	Environment EnvironmentReport `json:"environment"`
	Connection  ConnectionReport  `json:"connection"`
}

type EnvironmentReport struct {
	config.BackendReport
	SiteURL           string `json:"site_url"`
	CaptchaConfigured bool   `json:"captcha_configured"`
	CaptchaOnSignIn   bool   `json:"captcha_on_signin"`
}

type ConnectionReport struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ConfigCheckHandler reports whether the backend parameters are present and
// usable, probing the data API when they are. It answers 500 when the URL or
// key is missing.
func (s *Server) ConfigCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := config.CheckBackend(s.config)
		resp := ConfigCheckResponse{
			Environment: EnvironmentReport{
				BackendReport:     report,
				SiteURL:           s.config.GetSiteURL(),
				CaptchaConfigured: s.config.GetCaptchaSiteKey() != "",
				CaptchaOnSignIn:   s.config.GetCaptchaSignInEnabled(),
			},
			Connection: ConnectionReport{Status: ConnectionNotTested},
		}

		switch {
		case !report.URLPresent || !report.KeyPresent:
			resp.Connection = ConnectionReport{Status: ConnectionSkipped, Message: "Missing backend URL or anon key"}
		case !report.Configured:
			resp.Connection.Message = strings.Join(report.Problems, "; ")
		default:
			client, _ := s.backendFor(w, r)
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			defer cancel()
			if err := client.Ping(ctx); err != nil {
				requestLogger(r, s.logger).Warn().Err(err).Msg("backend connectivity check failed")
				resp.Connection = ConnectionReport{Status: ConnectionError, Message: err.Error()}
			} else {
				resp.Connection = ConnectionReport{Status: ConnectionSuccess, Message: "Connected to backend"}
			}
		}

		status := http.StatusOK
		if !report.URLPresent || !report.KeyPresent {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, resp)
	}
}
