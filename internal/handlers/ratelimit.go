package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/middleware"
)

// authRetryAfter is advertised to clients that hit an authentication rate limit.
const authRetryAfter = 30 * time.Second

// throttled reports whether the caller exceeded the limiter for scope and, if so, writes a 429.
func throttled(w http.ResponseWriter, r *http.Request, limiter middleware.RateLimiter, scope string) bool {
	if limiter == nil || limiter.Allow(scope+":"+clientIP(r)) {
		return false
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(authRetryAfter.Seconds())))
	respondError(r.Context(), w, http.StatusTooManyRequests, "too many "+scope+" attempts")
	return true
}

// clientIP prefers proxy headers carrying a parseable address and falls back to RemoteAddr.
func clientIP(r *http.Request) string {
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
