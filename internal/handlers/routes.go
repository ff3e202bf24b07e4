package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger         *slog.Logger
	Users          UserStore
	Sessions       SessionManager
	Tokens         middleware.TokenValidator
	Videos         VideoStore
	Clips          ClipStore
	Objects        ObjectStore
	Events         events.Publisher
	AuthLimiter    middleware.RateLimiter
	Metrics        *middleware.Metrics
	MetricsHandler http.Handler
	HealthChecks   map[string]HealthCheck
	Uploads        UploadSettings
}

// UploadSettings carries the upload acceptance rules applied by the backend.
type UploadSettings struct {
	AllowedExtensions []string
	MaxSlotExpiry     time.Duration
	ThumbnailPrefix   string
}

// NewRouter wires HTTP handlers into a chi router.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	health := HealthHandler{Checks: deps.HealthChecks}
	authHandler := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	uploads := UploadHandler{
		Videos:            deps.Videos,
		Objects:           deps.Objects,
		Events:            deps.Events,
		AllowedExtensions: deps.Uploads.AllowedExtensions,
		MaxSlotExpiry:     deps.Uploads.MaxSlotExpiry,
		ThumbnailPrefix:   deps.Uploads.ThumbnailPrefix,
	}
	videos := VideoHandler{Videos: deps.Videos, ClipStore: deps.Clips}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler)
	}

	r.Get("/healthz", health.Handle)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", authHandler.SignUp)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(deps.Tokens))

			r.Get("/video-upload/generate-upload-url", uploads.GenerateUploadURL)
			r.Put("/video-upload/thumbnail", uploads.UploadThumbnail)
			r.Post("/video-upload/verify-upload", uploads.VerifyUpload)
			r.Get("/videos", videos.List)
			r.Get("/videoInputOutput/getClipsFromVideoId", videos.Clips)
		})
	})

	return r
}
