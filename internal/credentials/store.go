// Package credentials persists the client's session credential: a bearer token and a
// refresh token, each with its own expiry.
package credentials

import (
	"context"
	"errors"
	"time"
)

const (
	// AuthTokenKey holds the bearer token attached to outgoing requests.
	AuthTokenKey = "auth_token"
	// RefreshTokenKey holds the token exchanged for a new bearer token.
	RefreshTokenKey = "refresh_token"

	legacyAuthTokenKey    = "authToken"
	legacyRefreshTokenKey = "refreshToken"

	// AuthTokenTTL is how long a stored bearer token is kept.
	AuthTokenTTL = 24 * time.Hour
	// RefreshTokenTTL is how long a stored refresh token is kept.
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// ErrNotFound indicates the key is absent or its value has expired.
var ErrNotFound = errors.New("credential not found")

// Store is a durable key-value store with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// BearerToken returns the active bearer token, accepting the legacy key name.
func BearerToken(ctx context.Context, store Store) (string, error) {
	return firstOf(ctx, store, AuthTokenKey, legacyAuthTokenKey)
}

// RefreshToken returns the stored refresh token, accepting the legacy key name.
func RefreshToken(ctx context.Context, store Store) (string, error) {
	return firstOf(ctx, store, RefreshTokenKey, legacyRefreshTokenKey)
}

// SaveBearer replaces the active bearer token.
func SaveBearer(ctx context.Context, store Store, token string) error {
	if token == "" {
		return errors.New("credentials: empty bearer token")
	}
	return store.Set(ctx, AuthTokenKey, token, AuthTokenTTL)
}

// SaveSession stores a freshly issued token pair. An empty refresh token leaves the
// stored one untouched.
func SaveSession(ctx context.Context, store Store, bearer, refresh string) error {
	if err := SaveBearer(ctx, store, bearer); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	return store.Set(ctx, RefreshTokenKey, refresh, RefreshTokenTTL)
}

func firstOf(ctx context.Context, store Store, keys ...string) (string, error) {
	for _, key := range keys {
		value, err := store.Get(ctx, key)
		if err == nil && value != "" {
			return value, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", ErrNotFound
}
