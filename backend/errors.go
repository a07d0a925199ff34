package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/storefront-auth/internal/errors"
)

// NoRowsCode is the data API code for "the result contains 0 rows".
const NoRowsCode = "PGRST116"

// APIError is a non-2xx response from either the auth service or the data API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// Unwrap maps well-known codes onto the shared sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == NoRowsCode:
		return apperrors.ErrNoRows
	case e.Status == http.StatusTooManyRequests, strings.HasPrefix(e.Code, "over_") && strings.HasSuffix(e.Code, "rate_limit"):
		return apperrors.ErrRateLimited
	case e.Code == "invalid_credentials":
		return apperrors.ErrInvalidCredentials
	case e.Code == "email_not_confirmed":
		return apperrors.ErrEmailNotConfirmed
	}
	return nil
}

// IsNoRows reports whether err means the requested row does not exist.
func IsNoRows(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.Is(err, apperrors.ErrNoRows) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "No rows") || strings.Contains(msg, "0 rows")
}

func parseAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		return apiErr
	}

	var body struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Details          any    `json:"details"`
		Hint             string `json:"hint"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}

	code, _ := body.Code.(string)
	for _, c := range []string{body.ErrorCode, code, body.Error} {
		if c != "" {
			apiErr.Code = c
			break
		}
	}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if body.Details != nil {
		apiErr.Details = fmt.Sprint(body.Details)
	}
	apiErr.Hint = body.Hint
	return apiErr
}
