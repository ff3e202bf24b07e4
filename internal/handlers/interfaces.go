package handlers

import (
	"context"
	"io"
	"time"

	"github.com/clipforge/clipforge/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionManager issues, refreshes and revokes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
}

// VideoStore captures persistence for uploaded videos.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByBlobName(ctx context.Context, ownerID, blobName string) (models.Video, error)
	FindByID(ctx context.Context, videoID string) (models.Video, error)
	ListForOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	MarkUploaded(ctx context.Context, videoID string, durationSec int) error
	SetThumbnail(ctx context.Context, ownerID, blobName, thumbnailURL string) error
}

// ClipStore exposes the generated clips of a video.
type ClipStore interface {
	ListForVideo(ctx context.Context, videoID string) ([]models.Clip, error)
}

// ObjectStore issues upload slots and persists small assets.
type ObjectStore interface {
	PresignPut(ctx context.Context, key string, expires time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}
