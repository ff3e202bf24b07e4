package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrSessionExpired is returned when an authorization failure could not be recovered by
	// refreshing the session. The credential store has been cleared by the time callers see it.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoRefreshToken indicates the credential store holds no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrMissingBearer indicates a token response carried no usable bearer token.
	ErrMissingBearer = errors.New("token response missing bearer token")
)

// maxErrorBody bounds how much of a failed response is retained.
const maxErrorBody = 64 << 10

// HTTPError describes a non-2xx response.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), msg)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Message extracts the server supplied reason from a JSON error body, if any.
func (e *HTTPError) Message() string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &payload); err == nil {
		for _, candidate := range []string{payload.Message, payload.Error, payload.Detail} {
			if candidate != "" {
				return candidate
			}
		}
		return ""
	}
	return strings.TrimSpace(string(e.Body))
}

// IsAuthFailure reports whether the status triggers a session refresh.
func IsAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// StatusCode returns the HTTP status carried by err, or zero.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
