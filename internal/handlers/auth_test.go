package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clipforge/clipforge/internal/auth"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/repositories"
)

const testJWTSecret = "handlers-test-secret-0123456789abcdef"

type inMemoryUserStore struct {
	users map[string]models.User
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	if _, exists := s.users[user.Email]; exists {
		return repositories.ErrConflict
	}
	s.users[user.Email] = user
	return nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	user, ok := s.users[email]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func newTestManager(t *testing.T) *auth.Manager {
	t.Helper()
	manager, err := auth.NewManager(testJWTSecret, time.Minute, time.Hour, auth.NewInMemorySessionStore())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return manager
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeAuthResponse(t *testing.T, rec *httptest.ResponseRecorder) authResponse {
	t.Helper()
	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestAuthHandlerSignUp(t *testing.T) {
	store := newInMemoryUserStore()
	handler := AuthHandler{Users: store, Sessions: newTestManager(t)}

	rec := postJSON(t, handler.SignUp, "/api/auth/signup", map[string]string{"email": "Test@Example.com", "password": "supersafe"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	resp := decodeAuthResponse(t, rec)
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", resp.Tokens)
	}

	stored, err := store.FindByEmail(context.Background(), "test@example.com")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("supersafe")) != nil {
		t.Fatal("stored password is not hashed")
	}

	rec = postJSON(t, handler.SignUp, "/api/auth/signup", map[string]string{"email": "test@example.com", "password": "supersafe"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate signup, got %d", rec.Code)
	}
}

func TestAuthHandlerSignUpValidation(t *testing.T) {
	handler := AuthHandler{Users: newInMemoryUserStore(), Sessions: newTestManager(t)}

	tests := []struct {
		name    string
		payload map[string]string
		message string
	}{
		{name: "missing email", payload: map[string]string{"password": "supersafe"}, message: "email is required"},
		{name: "bad email", payload: map[string]string{"email": "nope", "password": "supersafe"}, message: "invalid email address"},
		{name: "short password", payload: map[string]string{"email": "a@example.com", "password": "short"}, message: "password must be at least 8 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler.SignUp, "/api/auth/signup", tt.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
			var body map[string]string
			_ = json.NewDecoder(rec.Body).Decode(&body)
			if body["error"] != tt.message {
				t.Fatalf("expected message %q got %q", tt.message, body["error"])
			}
		})
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	store := newInMemoryUserStore()
	handler := AuthHandler{Users: store, Sessions: newTestManager(t)}

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store.users["login@example.com"] = models.User{ID: "user-1", Email: "login@example.com", Password: string(hashed)}

	rec := postJSON(t, handler.Login, "/api/auth/login", map[string]string{"email": "login@example.com", "password": "password123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	resp := decodeAuthResponse(t, rec)
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", resp.Tokens)
	}

	rec = postJSON(t, handler.Login, "/api/auth/login", map[string]string{"email": "login@example.com", "password": "wrong-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestAuthHandlerLoginRateLimited(t *testing.T) {
	handler := AuthHandler{Users: newInMemoryUserStore(), Sessions: newTestManager(t), Limiter: denyLimiter{}}

	rec := postJSON(t, handler.Login, "/api/auth/login", map[string]string{"email": "a@example.com", "password": "password123"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "203.0.113.9"}, remote: "10.0.0.1:5555", want: "203.0.113.9"},
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.2"}, remote: "10.0.0.1:5555", want: "198.51.100.4"},
		{name: "garbage forwarded", headers: map[string]string{"X-Forwarded-For": "not-an-ip"}, remote: "10.0.0.1:5555", want: "10.0.0.1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tc.want {
				t.Fatalf("clientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAuthHandlerRefresh(t *testing.T) {
	manager := newTestManager(t)
	tokens, err := manager.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	handler := AuthHandler{Sessions: manager}

	rec := postJSON(t, handler.Refresh, "/api/auth/refresh", map[string]string{"refreshToken": tokens.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	resp := decodeAuthResponse(t, rec)
	if resp.Tokens.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a new refresh token to be issued")
	}

	// The rotated-out token must no longer work.
	rec = postJSON(t, handler.Refresh, "/api/auth/refresh", map[string]string{"refresh_token": tokens.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for reused refresh token, got %d", rec.Code)
	}

	rec = postJSON(t, handler.Refresh, "/api/auth/refresh", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing token, got %d", rec.Code)
	}
}

func TestAuthHandlerLogout(t *testing.T) {
	manager := newTestManager(t)
	tokens, err := manager.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	handler := AuthHandler{Sessions: manager}

	rec := postJSON(t, handler.Logout, "/api/auth/logout", map[string]string{"refreshToken": tokens.RefreshToken})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}

	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); err == nil {
		t.Fatal("expected revoked token to be rejected")
	}
}
