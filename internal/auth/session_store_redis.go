package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSessionPrefix = "clipforge:refresh:"

// RedisSessionStore keeps refresh sessions in Redis with a TTL matching their expiry.
type RedisSessionStore struct {
	client redis.Cmdable
}

// NewRedisSessionStore wraps an existing Redis client.
func NewRedisSessionStore(client redis.Cmdable) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// Save persists the session until it expires.
func (s *RedisSessionStore) Save(ctx context.Context, session Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, redisSessionPrefix+session.RefreshToken, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Find loads a session by refresh token.
func (s *RedisSessionStore) Find(ctx context.Context, refreshToken string) (Session, error) {
	raw, err := s.client.Get(ctx, redisSessionPrefix+refreshToken).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// Delete removes a session.
func (s *RedisSessionStore) Delete(ctx context.Context, refreshToken string) error {
	removed, err := s.client.Del(ctx, redisSessionPrefix+refreshToken).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if removed == 0 {
		return ErrSessionNotFound
	}
	return nil
}
