package apiclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipforge/clipforge/internal/credentials"
)

// Login exchanges credentials for a session and stores it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.startSession(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// Signup creates an account and stores the session the server issues for it.
func (c *Client) Signup(ctx context.Context, email, password string) error {
	return c.startSession(ctx, "/auth/signup", map[string]string{"email": email, "password": password})
}

func (c *Client) startSession(ctx context.Context, path string, payload map[string]string) error {
	body, err := c.postUnauthenticated(ctx, c.refreshHTTP, path, payload)
	if err != nil {
		return err
	}
	tokens, err := NormalizeRefreshResponse(body)
	if err != nil {
		return err
	}
	if err := credentials.SaveSession(ctx, c.store, tokens.Bearer, tokens.Refresh); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Logout revokes the refresh token server side and clears local credentials. The server call
// is best-effort; local credentials are always cleared.
func (c *Client) Logout(ctx context.Context) error {
	refreshToken, err := credentials.RefreshToken(ctx, c.store)
	switch {
	case err == nil:
		if _, err := c.postUnauthenticated(ctx, c.refreshHTTP, "/auth/logout", map[string]string{"refreshToken": refreshToken}); err != nil {
			c.logger.Warn("server logout failed", "error", err)
		}
	case !errors.Is(err, credentials.ErrNotFound):
		c.logger.Warn("read refresh token for logout", "error", err)
	}

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Authenticated reports whether a bearer or refresh token is stored.
func (c *Client) Authenticated(ctx context.Context) bool {
	if _, err := credentials.BearerToken(ctx, c.store); err == nil {
		return true
	}
	_, err := credentials.RefreshToken(ctx, c.store)
	return err == nil
}
