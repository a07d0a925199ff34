package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/storefront-auth/internal/utils"
)

// AuthCallbackHandler is where confirmation and PKCE links land. Error
// parameters and failed code exchanges go back to the sign-in page; anything
// else continues to next.
func (s *Server) AuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(r, s.logger)
		query := r.URL.Query()

		errParam, errCode := query.Get("error"), query.Get("error_code")
		if errParam != "" || errCode != "" {
			message := strings.ReplaceAll(query.Get("error_description"), "+", " ")
			logger.Warn().Str("error", errParam).Str("error_code", errCode).Str("description", message).Msg("auth callback error")
			s.redirectToSignIn(w, r,
				utils.FirstNonEmpty(errCode, errParam, "auth_error"),
				utils.FirstNonEmpty(message, errParam, "An authentication error occurred"))
			return
		}

		if code := query.Get("code"); code != "" {
			client, store := s.backendFor(w, r)
			if _, err := client.ExchangeCodeForSession(r.Context(), code, store.CodeVerifier()); err != nil {
				logger.Error().Err(err).Msg("auth code exchange failed")
				s.redirectToSignIn(w, r,
					utils.FirstNonEmpty(err.Error(), "session_error"),
					utils.FirstNonEmpty(err.Error(), "Failed to complete authentication"))
				return
			}
			store.ClearCodeVerifier()
		}

		http.Redirect(w, r, s.config.GetSiteURL()+safeNext(query.Get("next")), http.StatusSeeOther)
	}
}

func (s *Server) redirectToSignIn(w http.ResponseWriter, r *http.Request, errorCode, message string) {
	params := url.Values{"error": {errorCode}, "message": {message}}
	http.Redirect(w, r, s.config.GetSiteURL()+RouteSignInPage+"?"+params.Encode(), http.StatusSeeOther)
}

// safeNext only lets through paths on the storefront itself.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}
