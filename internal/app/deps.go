package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clipforge/clipforge/internal/auth"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/db"
	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/handlers"
	"github.com/clipforge/clipforge/internal/middleware"
	"github.com/clipforge/clipforge/internal/repositories"
	"github.com/clipforge/clipforge/internal/storage"
)

const (
	clipEventTimeout     = 30 * time.Second
	sessionPruneInterval = 10 * time.Minute
)

type cleanupFunc func(ctx context.Context) error

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, cleanupFunc, error) {
	var closers []func(context.Context) error
	cleanup := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (handlers.Dependencies, cleanupFunc, error) {
		_ = cleanup(context.Background())
		return handlers.Dependencies{}, nil, err
	}

	checks := map[string]handlers.HealthCheck{"database": pool.Ping}

	sessionStore, closeSessions, err := buildSessionStore(ctx, pool, cfg.Server, checks, logger)
	if err != nil {
		return fail(err)
	}
	if closeSessions != nil {
		closers = append(closers, closeSessions)
	}

	manager, err := auth.NewManager(cfg.Server.JWTSecret, cfg.Server.AccessTTL, cfg.Server.RefreshTTL, sessionStore)
	if err != nil {
		return fail(err)
	}

	objects, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return fail(err)
	}

	videos := repositories.NewPostgresVideoRepository(pool)
	clips := repositories.NewPostgresClipRepository(pool)

	var publisher events.Publisher = events.NopPublisher{}
	if url := strings.TrimSpace(cfg.Server.NATSURL); url != "" {
		bus, err := events.ConnectNATS(url)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func(context.Context) error {
			bus.Close()
			return nil
		})

		ingestor := events.NewClipIngestor(videos, clips, logger)
		_, err = bus.Subscribe(events.SubjectClipsGenerated, func(data []byte) error {
			ctx, cancel := context.WithTimeout(context.Background(), clipEventTimeout)
			defer cancel()
			return ingestor.Handle(ctx, data)
		}, func(err error) {
			logger.Error("clip event rejected", "error", err)
		})
		if err != nil {
			return fail(err)
		}

		publisher = bus
		checks["nats"] = func(context.Context) error {
			if !bus.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	} else {
		logger.Warn("CLIPFORGE_NATS_URL not set, upload events will not be published")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := handlers.Dependencies{
		Logger:         logger,
		Users:          repositories.NewPostgresUserRepository(pool),
		Sessions:       manager,
		Tokens:         manager,
		Videos:         videos,
		Clips:          clips,
		Objects:        objects,
		Events:         publisher,
		AuthLimiter:    middleware.NewIPRateLimiter(cfg.Server.AuthRateLimit, cfg.Server.AuthRateWindow, 0, 10*time.Minute),
		Metrics:        middleware.NewMetrics(registry),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		HealthChecks:   checks,
		Uploads: handlers.UploadSettings{
			AllowedExtensions: cfg.Limits.AllowedExtensions,
			MaxSlotExpiry:     cfg.Server.MaxSlotExpiry,
			ThumbnailPrefix:   cfg.Server.ThumbnailPrefix,
		},
	}

	return deps, cleanup, nil
}

func buildSessionStore(ctx context.Context, pool db.Pool, cfg config.ServerConfig, checks map[string]handlers.HealthCheck, logger *slog.Logger) (auth.SessionStore, cleanupFunc, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SessionBackend)) {
	case "", "postgres":
		store := repositories.NewPostgresSessionStore(pool)
		stop := startPruner(logger, sessionPruneInterval, store.Prune)
		return store, stop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return auth.NewRedisSessionStore(client), func(context.Context) error { return client.Close() }, nil
	case "memory":
		store := auth.NewInMemorySessionStore()
		stop := startPruner(logger, sessionPruneInterval, func(_ context.Context, now time.Time) (int, error) {
			return store.Prune(now), nil
		})
		return store, stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

// startPruner drops expired sessions every interval until the returned cleanup runs.
func startPruner(logger *slog.Logger, interval time.Duration, prune func(context.Context, time.Time) (int, error)) cleanupFunc {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed, err := prune(ctx, now)
				if err != nil && ctx.Err() == nil {
					logger.Warn("prune sessions failed", "error", err)
					continue
				}
				if removed > 0 {
					logger.Debug("pruned expired sessions", "count", removed)
				}
			}
		}
	}()

	return func(stopCtx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

// withCORS allows the browser front end to call the API with bearer credentials.
func withCORS(origins []string, next http.Handler) http.Handler {
	return corsHandler(origins).Handler(next)
}
