// Package repositories persists users, sessions, videos and clips in PostgreSQL.
package repositories

import (
	"context"
	"errors"

	"github.com/clipforge/clipforge/internal/models"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write collides with a unique constraint, such as a
	// second account for the same email.
	ErrConflict = errors.New("record conflict")
)

// UserRepository stores accounts keyed by normalized email.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

// VideoRepository tracks uploaded videos through the uploading, processing, completed and
// failed states.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByBlobName(ctx context.Context, ownerID, blobName string) (models.Video, error)
	FindByID(ctx context.Context, videoID string) (models.Video, error)
	ListForOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	MarkUploaded(ctx context.Context, videoID string, durationSec int) error
	SetThumbnail(ctx context.Context, ownerID, blobName, thumbnailURL string) error
	UpdateStatus(ctx context.Context, videoID, status string) error
}

// ClipRepository stores the clips generated for a video.
type ClipRepository interface {
	ReplaceForVideo(ctx context.Context, videoID string, clips []models.Clip) error
	ListForVideo(ctx context.Context, videoID string) ([]models.Clip, error)
}

var (
	_ UserRepository  = (*PostgresUserRepository)(nil)
	_ VideoRepository = (*PostgresVideoRepository)(nil)
	_ ClipRepository  = (*PostgresClipRepository)(nil)
)
