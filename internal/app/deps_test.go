package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/events"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Ping(context.Context) error { return nil }

func (fakePool) Close() {}

func testServerConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{
			JWTSecret:      strings.Repeat("s", 32),
			AccessTTL:      time.Minute,
			RefreshTTL:     time.Hour,
			SessionBackend: "memory",
			AuthRateLimit:  10,
			AuthRateWindow: time.Minute,
			MaxSlotExpiry:  24 * time.Hour,
		},
		ObjectStore: config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"},
		Limits:      config.LimitsConfig{AllowedExtensions: []string{"mp4"}},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildDependencies(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, testServerConfig(), discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = cleanup(ctx)
	}()

	if deps.Users == nil || deps.Sessions == nil || deps.Tokens == nil {
		t.Fatal("expected auth dependencies to be configured")
	}
	if deps.Videos == nil || deps.Clips == nil || deps.Objects == nil {
		t.Fatal("expected video dependencies to be configured")
	}
	if _, ok := deps.Events.(events.NopPublisher); !ok {
		t.Fatalf("expected no-op publisher without NATS, got %T", deps.Events)
	}
	if deps.Metrics == nil || deps.MetricsHandler == nil {
		t.Fatal("expected metrics to be configured")
	}
	if _, ok := deps.HealthChecks["database"]; !ok {
		t.Fatal("expected database health check")
	}
	if deps.Uploads.MaxSlotExpiry != 24*time.Hour {
		t.Fatalf("unexpected upload settings %+v", deps.Uploads)
	}
}

func TestBuildDependenciesRejectsBadConfig(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg := testServerConfig()
	cfg.Server.SessionBackend = "carrier-pigeon"
	if _, _, err := buildDependencies(context.Background(), fakePool{}, cfg, discardLogger()); err == nil {
		t.Fatal("expected error for unknown session backend")
	}

	cfg = testServerConfig()
	cfg.Server.JWTSecret = "short"
	if _, _, err := buildDependencies(context.Background(), fakePool{}, cfg, discardLogger()); err == nil {
		t.Fatal("expected error for a short signing secret")
	}
}

func TestSeedFileName(t *testing.T) {
	if got := seedFileName("dev"); got != "dev_seed.sql" {
		t.Fatalf("unexpected seed file %q", got)
	}
	if got := seedFileName("custom.sql"); got != "custom.sql" {
		t.Fatalf("unexpected seed file %q", got)
	}
}

func TestMigrationBackoff(t *testing.T) {
	if got := migrationBackoff(1); got != migrationBaseBackoff {
		t.Fatalf("unexpected first backoff %v", got)
	}
	if got := migrationBackoff(10); got != migrationMaxBackoff {
		t.Fatalf("expected backoff to be capped, got %v", got)
	}
}

func TestStartPrunerRunsUntilStopped(t *testing.T) {
	calls := make(chan time.Time, 4)
	stop := startPruner(discardLogger(), 5*time.Millisecond, func(_ context.Context, now time.Time) (int, error) {
		select {
		case calls <- now:
		default:
		}
		return 1, nil
	})

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("expected prune to run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		t.Fatalf("stop pruner: %v", err)
	}
}
