package credentials

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func exerciseStore(t *testing.T, store Store, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, AuthTokenKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	if err := SaveSession(ctx, store, "bearer-1", "refresh-1"); err != nil {
		t.Fatalf("save session: %v", err)
	}

	bearer, err := BearerToken(ctx, store)
	if err != nil || bearer != "bearer-1" {
		t.Fatalf("BearerToken() = %q, %v", bearer, err)
	}
	refresh, err := RefreshToken(ctx, store)
	if err != nil || refresh != "refresh-1" {
		t.Fatalf("RefreshToken() = %q, %v", refresh, err)
	}

	if err := SaveSession(ctx, store, "bearer-2", ""); err != nil {
		t.Fatalf("save session without refresh: %v", err)
	}
	if refresh, _ := RefreshToken(ctx, store); refresh != "refresh-1" {
		t.Fatalf("expected refresh token to be kept, got %q", refresh)
	}

	advance(AuthTokenTTL + time.Minute)
	if _, err := BearerToken(ctx, store); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected bearer to expire, got %v", err)
	}
	if refresh, err := RefreshToken(ctx, store); err != nil || refresh != "refresh-1" {
		t.Fatalf("expected refresh token to outlive bearer, got %q, %v", refresh, err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := RefreshToken(ctx, store); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cleared store, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.WithNowFunc(func() time.Time { return now })

	exerciseStore(t, store, func(d time.Duration) { now = now.Add(d) })
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "credentials.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	exerciseStore(t, store, func(d time.Duration) { now = now.Add(d) })
}

func TestSQLiteStorePersistsAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.db")

	first, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := SaveSession(ctx, first, "bearer", "refresh"); err != nil {
		t.Fatalf("save session: %v", err)
	}
	first.Close()

	second, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer second.Close()

	if token, err := BearerToken(ctx, second); err != nil || token != "bearer" {
		t.Fatalf("expected persisted bearer, got %q, %v", token, err)
	}
}

func TestLegacyKeyFallback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Set(ctx, "authToken", "legacy-bearer", time.Hour)
	_ = store.Set(ctx, "refreshToken", "legacy-refresh", time.Hour)

	if token, _ := BearerToken(ctx, store); token != "legacy-bearer" {
		t.Fatalf("expected legacy bearer, got %q", token)
	}
	if token, _ := RefreshToken(ctx, store); token != "legacy-refresh" {
		t.Fatalf("expected legacy refresh, got %q", token)
	}

	_ = store.Set(ctx, AuthTokenKey, "current", time.Hour)
	if token, _ := BearerToken(ctx, store); token != "current" {
		t.Fatalf("expected current key to win, got %q", token)
	}
}
