package backendfake

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/storefront-auth/backend"
	"golang.org/x/crypto/bcrypt"
)

func routeOf(r *http.Request) string {
	switch r.URL.Path {
	case "/auth/v1/signup":
		return RouteSignup
	case "/auth/v1/token":
		return "token:" + r.URL.Query().Get("grant_type")
	case "/auth/v1/verify":
		return RouteVerify
	case "/auth/v1/user":
		return "user:" + r.Method
	case "/auth/v1/logout":
		return RouteLogout
	case "/auth/v1/recover":
		return RouteRecover
	case "/auth/v1/resend":
		return RouteResend
	case "/rest/v1/profiles":
		return "profiles:" + r.Method
	}
	return ""
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.opts.Latency > 0 {
		select {
		case <-time.After(s.opts.Latency):
		case <-r.Context().Done():
			return
		}
	}

	if r.Header.Get("apikey") != s.anonKey {
		writeAuthError(w, http.StatusUnauthorized, "no_api_key", "Invalid API key")
		return
	}

	route := routeOf(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[route]++
	if injected, ok := s.failures[route]; ok {
		writeInjected(w, injected)
		return
	}

	switch route {
	case RouteSignup:
		s.handleSignup(w, r)
	case RouteTokenPassword:
		s.handlePasswordGrant(w, r)
	case RouteTokenRefresh:
		s.handleRefreshGrant(w, r)
	case RouteTokenPKCE:
		s.handlePKCEGrant(w, r)
	case RouteVerify:
		s.handleVerify(w, r)
	case RouteUserGet, RouteUserPut:
		s.handleUser(w, r)
	case RouteLogout:
		s.handleLogout(w, r)
	case RouteRecover, RouteResend:
		writeJSON(w, http.StatusOK, map[string]any{})
	case RouteProfileGet:
		s.handleProfileGet(w, r)
	case RouteProfilePatch:
		s.handleProfilePatch(w, r)
	case RouteProfilePost:
		s.handleProfilePost(w, r)
	default:
		writeAuthError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return false
	}
	return true
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Email == "" || !strings.Contains(body.Email, "@") {
		writeAuthError(w, http.StatusBadRequest, "validation_failed", "Unable to validate email address: invalid format")
		return
	}
	if len(body.Password) < 6 {
		writeAuthError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}
	if _, exists := s.accounts[strings.ToLower(body.Email)]; exists {
		writeAuthError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}

	acc := s.createAccount(body.Email, body.Password, body.Data, !s.opts.RequireConfirmation)
	if !s.opts.DisableProfileTrigger {
		s.pending[acc.user.ID] = &pendingProfile{
			profile:   backend.Profile{ID: acc.user.ID, Email: acc.user.Email, Name: acc.user.Email},
			readsLeft: s.opts.ProfileDelayReads,
		}
	}

	if s.opts.RequireConfirmation {
		writeJSON(w, http.StatusOK, acc.user)
		return
	}
	writeJSON(w, http.StatusOK, s.newSession(acc.user))
}

func (s *Server) handlePasswordGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}
	acc, ok := s.accounts[strings.ToLower(body.Email)]
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(body.Password)) != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
		return
	}
	if !acc.confirmed {
		writeAuthError(w, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
		return
	}
	writeJSON(w, http.StatusOK, s.newSession(acc.user))
}

func (s *Server) handleRefreshGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &body) {
		return
	}
	userID, ok := s.refresh[body.RefreshToken]
	acc := s.accountByID(userID)
	if !ok || acc == nil {
		writeAuthError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	delete(s.refresh, body.RefreshToken)
	writeJSON(w, http.StatusOK, s.newSession(acc.user))
}

func (s *Server) handlePKCEGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AuthCode string `json:"auth_code"`
	}
	if !decode(w, r, &body) {
		return
	}
	userID, ok := s.codes[body.AuthCode]
	acc := s.accountByID(userID)
	if !ok || acc == nil {
		writeAuthError(w, http.StatusNotFound, "flow_state_not_found", "invalid flow state, no valid flow state found")
		return
	}
	delete(s.codes, body.AuthCode)
	acc.confirmed = true
	writeJSON(w, http.StatusOK, s.newSession(acc.user))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Token string `json:"token"`
		Type  string `json:"type"`
	}
	if !decode(w, r, &body) {
		return
	}
	acc, ok := s.accounts[strings.ToLower(body.Email)]
	if !ok || body.Token != DefaultOTP {
		writeAuthError(w, http.StatusForbidden, "otp_expired", "Token has expired or is invalid")
		return
	}
	now := time.Now().UTC()
	acc.confirmed = true
	acc.user.EmailConfirmedAt = &now
	writeJSON(w, http.StatusOK, s.newSession(acc.user))
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	userID, valid := s.bearerUser(r)
	acc := s.accountByID(userID)
	if !valid || acc == nil {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT: unable to parse or verify signature")
		return
	}
	if r.Method == http.MethodPut {
		var body struct {
			Password string `json:"password"`
		}
		if !decode(w, r, &body) {
			return
		}
		if len(body.Password) < 6 {
			writeAuthError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.MinCost)
		if err != nil {
			writeAuthError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
			return
		}
		acc.passwordHash = hash
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, valid := s.bearerUser(r)
	if !valid || userID == "" {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT: unable to parse or verify signature")
		return
	}
	for token, id := range s.refresh {
		if id == userID {
			delete(s.refresh, token)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// visibleProfile materialises a pending trigger row once its delay has elapsed.
func (s *Server) visibleProfile(id string, countRead bool) (backend.Profile, bool) {
	if p, ok := s.profiles[id]; ok {
		return p, true
	}
	pending, ok := s.pending[id]
	if !ok {
		return backend.Profile{}, false
	}
	if pending.readsLeft > 0 {
		if countRead {
			pending.readsLeft--
		}
		return backend.Profile{}, false
	}
	delete(s.pending, id)
	s.profiles[id] = pending.profile
	return pending.profile, true
}

func idFilter(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
}

func noRows(w http.ResponseWriter) {
	writeDataError(w, http.StatusNotAcceptable, backend.NoRowsCode,
		"JSON object requested, multiple (or no) rows returned", "The result contains 0 rows")
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	userID, valid := s.bearerUser(r)
	if !valid {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "JWT expired")
		return
	}

	id := idFilter(r)
	if id == "" {
		rows := []map[string]string{}
		if p, ok := s.profiles[userID]; ok {
			rows = append(rows, map[string]string{"id": p.ID})
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}

	if id != userID {
		noRows(w)
		return
	}
	p, ok := s.visibleProfile(id, true)
	if !ok {
		noRows(w)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProfilePatch(w http.ResponseWriter, r *http.Request) {
	userID, valid := s.bearerUser(r)
	if !valid {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "JWT expired")
		return
	}
	var updates backend.ProfileUpdates
	if !decode(w, r, &updates) {
		return
	}
	id := idFilter(r)
	if id != userID {
		noRows(w)
		return
	}
	p, ok := s.visibleProfile(id, false)
	if !ok {
		noRows(w)
		return
	}
	p = updates.ApplyTo(p)
	s.profiles[id] = p
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProfilePost(w http.ResponseWriter, r *http.Request) {
	userID, valid := s.bearerUser(r)
	if !valid {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "JWT expired")
		return
	}
	var p backend.Profile
	if !decode(w, r, &p) {
		return
	}
	if p.ID == "" || p.ID != userID {
		writeDataError(w, http.StatusForbidden, "42501",
			`new row violates row-level security policy for table "profiles"`, "")
		return
	}

	upsert := strings.Contains(r.Header.Get("Prefer"), "merge-duplicates")
	existing, exists := s.visibleProfile(p.ID, false)
	if exists && !upsert {
		writeDataError(w, http.StatusConflict, "23505",
			`duplicate key value violates unique constraint "profiles_pkey"`, "Key (id) already exists.")
		return
	}
	if exists {
		if p.Email == "" {
			p.Email = existing.Email
		}
		if p.AvatarURL == "" {
			p.AvatarURL = existing.AvatarURL
		}
	}
	delete(s.pending, p.ID)
	s.profiles[p.ID] = p
	writeJSON(w, http.StatusCreated, p)
}
