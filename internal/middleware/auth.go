package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clipforge/clipforge/internal/auth"
	"github.com/clipforge/clipforge/internal/logging"
)

// TokenValidator verifies access tokens.
type TokenValidator interface {
	Validate(accessToken string) (auth.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and records the caller on the context.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			scheme, token, ok := strings.Cut(header, " ")
			if header == "" || !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, "authorization header required")
				return
			}

			claims, err := validator.Validate(strings.TrimSpace(token))
			if err != nil {
				logging.FromContext(r.Context()).Info("access token rejected", "error", err)
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := logging.WithUserID(r.Context(), claims.UserID)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", claims.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="clipforge"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
