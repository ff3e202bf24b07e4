package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/rs/cors"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/db"
	"github.com/clipforge/clipforge/internal/handlers"
	"github.com/clipforge/clipforge/internal/httpserver"
)

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool, err := db.Connect(ctx, cfg.Server.DatabaseURL, db.Options{
		MaxConns:          int32(cfg.Server.DBMaxConns),
		HealthCheckPeriod: 30 * time.Second,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(cleanupCtx); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	handler := withCORS(cfg.Server.AllowedOrigins, handlers.NewRouter(deps))
	srv := httpserver.New(cfg.Server.AppPort, handler, logger)
	return srv.ListenAndServe(ctx)
}

func corsHandler(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
