package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/storefront-auth/backend"
	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
	"github.com/jrsteele09/storefront-auth/internal/utils"
)

const maxBodyBytes = 1 << 16

// relayError is the JSON body of every failed relay call. Code and ErrorCode
// carry the backend's status and error code when the backend rejected the call.
type relayError struct {
	Error     string `json:"error"`
	Code      int    `json:"code,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

type signInRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type signUpRequest struct {
	signInRequest
	Name     string `json:"name"`
	Whatsapp string `json:"whatsapp"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
	Type  string `json:"type"`
}

// SignInHandler performs a password sign-in server-side. The session is
// returned in the body and set as a cookie.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := requestLogger(r, s.logger)

		var req signInRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Email == "" || req.Password == "" {
			writeJSON(w, http.StatusBadRequest, relayError{Error: "Email and password are required"})
			return
		}

		client, _ := s.backendFor(w, r)
		res, err := client.SignInWithPassword(r.Context(), backend.Credentials{
			Email:        req.Email,
			Password:     req.Password,
			CaptchaToken: req.CaptchaToken,
		})
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			logger.Warn().Err(err).Int64("duration_ms", elapsed).Msg("relay sign-in failed")
			writeBackendError(w, err, http.StatusUnauthorized)
			return
		}

		logger.Info().Str("user_id", res.User.ID).Int64("duration_ms", elapsed).Msg("relay sign-in")
		writeJSON(w, http.StatusOK, res)
	}
}

// SignUpHandler creates the account server-side and seeds the profile row
// with the supplied name and contact. The profile write never fails the call.
func (s *Server) SignUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := requestLogger(r, s.logger)

		var req signUpRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Email == "" || req.Password == "" {
			writeJSON(w, http.StatusBadRequest, relayError{Error: "Email and password are required"})
			return
		}

		client, _ := s.backendFor(w, r)
		res, err := client.SignUp(r.Context(), backend.SignUpParams{
			Credentials: backend.Credentials{Email: req.Email, Password: req.Password, CaptchaToken: req.CaptchaToken},
			Name:        req.Name,
			Whatsapp:    req.Whatsapp,
		})
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			logger.Warn().Err(err).Int64("duration_ms", elapsed).Msg("relay sign-up failed")
			writeBackendError(w, err, http.StatusBadRequest)
			return
		}

		if res.User != nil && res.User.ID != "" {
			profile := backend.Profile{
				ID:       res.User.ID,
				Email:    utils.FirstNonEmpty(res.User.Email, req.Email),
				Name:     utils.FirstNonEmpty(req.Name, res.User.Email, req.Email),
				Whatsapp: req.Whatsapp,
			}
			if _, err := client.UpsertProfile(r.Context(), profile); err != nil {
				logger.Warn().Err(err).Str("user_id", profile.ID).Msg("profile upsert after sign-up failed")
			}
		}

		logger.Info().Bool("session", res.Session != nil).Int64("duration_ms", elapsed).Msg("relay sign-up")
		writeJSON(w, http.StatusOK, res)
	}
}

// VerifyOTPHandler confirms an emailed code. The type defaults to signup.
func (s *Server) VerifyOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := requestLogger(r, s.logger)

		var req verifyOTPRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Email == "" || req.Token == "" {
			writeJSON(w, http.StatusBadRequest, relayError{Error: "Email and code are required"})
			return
		}
		otpType := backend.OTPType(utils.FirstNonEmpty(req.Type, string(backend.OTPSignup)))

		client, _ := s.backendFor(w, r)
		res, err := client.VerifyOTP(r.Context(), req.Email, req.Token, otpType)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			logger.Warn().Err(err).Str("type", string(otpType)).Int64("duration_ms", elapsed).Msg("relay otp verification failed")
			writeBackendError(w, err, http.StatusBadRequest)
			return
		}
		logger.Info().Str("type", string(otpType)).Int64("duration_ms", elapsed).Msg("relay otp verification")
		writeJSON(w, http.StatusOK, res)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, relayError{Error: "Invalid request body"})
		return false
	}
	return true
}

// writeBackendError answers with rejectStatus when the backend rejected the
// call and 500 for anything else (configuration, transport).
func writeBackendError(w http.ResponseWriter, err error, rejectStatus int) {
	var apiErr *backend.APIError
	if apperrors.As(err, &apiErr) {
		writeJSON(w, rejectStatus, relayError{Error: apiErr.Error(), Code: apiErr.Status, ErrorCode: apiErr.Code})
		return
	}
	writeJSON(w, http.StatusInternalServerError, relayError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
