package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clipforge/clipforge/internal/db"
	"github.com/clipforge/clipforge/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, user.ID, user.Email, user.Password, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}

	return user, nil
}

// Update modifies an existing user record.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET email = $2, password_hash = $3, updated_at = $4
        WHERE id = $1
    `, user.ID, user.Email, user.Password, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for uploaded videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

const videoColumns = `v.id, v.owner_id, v.blob_name, v.status, v.duration_sec, v.thumbnail_url, v.created_at, v.updated_at,
            (SELECT COUNT(*) FROM clips c WHERE c.video_id = v.id)`

func scanVideo(row pgx.Row) (models.Video, error) {
	var video models.Video
	var clipCount int64
	err := row.Scan(&video.ID, &video.OwnerID, &video.BlobName, &video.Status, &video.DurationSec,
		&video.ThumbnailURL, &video.CreatedAt, &video.UpdatedAt, &clipCount)
	video.ClipCount = int(clipCount)
	return video, err
}

// Create stores a new video record, defaulting its status to uploading.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if video.Status == "" {
		video.Status = models.VideoStatusUploading
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, blob_name, status, duration_sec, thumbnail_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, video.ID, video.OwnerID, video.BlobName, video.Status, video.DurationSec, video.ThumbnailURL, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByBlobName returns the owner's video stored under blobName.
func (r *PostgresVideoRepository) FindByBlobName(ctx context.Context, ownerID, blobName string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `
        SELECT `+videoColumns+`
        FROM videos v
        WHERE v.owner_id = $1 AND v.blob_name = $2
    `, ownerID, blobName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video by blob: %w", err)
	}
	return video, nil
}

// FindByID returns a video by identifier.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, videoID string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `
        SELECT `+videoColumns+`
        FROM videos v
        WHERE v.id = $1
    `, videoID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// ListForOwner returns the owner's videos in reverse chronological order.
func (r *PostgresVideoRepository) ListForOwner(ctx context.Context, ownerID string) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+videoColumns+`
        FROM videos v
        WHERE v.owner_id = $1
        ORDER BY v.created_at DESC
        LIMIT 100
    `, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

// MarkUploaded records the measured duration and moves the video to processing.
func (r *PostgresVideoRepository) MarkUploaded(ctx context.Context, videoID string, durationSec int) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET status = $2, duration_sec = $3, updated_at = $4
        WHERE id = $1
    `, videoID, models.VideoStatusProcessing, durationSec, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update video uploaded: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetThumbnail stores the preview URL for the owner's video.
func (r *PostgresVideoRepository) SetThumbnail(ctx context.Context, ownerID, blobName, thumbnailURL string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET thumbnail_url = $3, updated_at = $4
        WHERE owner_id = $1 AND blob_name = $2
    `, ownerID, blobName, thumbnailURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update video thumbnail: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateStatus sets the processing status of a video.
func (r *PostgresVideoRepository) UpdateStatus(ctx context.Context, videoID, status string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET status = $2, updated_at = $3
        WHERE id = $1
    `, videoID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update video status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresClipRepository provides PostgreSQL-backed persistence for generated clips.
type PostgresClipRepository struct {
	pool db.Pool
}

// NewPostgresClipRepository constructs a clip repository backed by PostgreSQL.
func NewPostgresClipRepository(pool db.Pool) *PostgresClipRepository {
	return &PostgresClipRepository{pool: pool}
}

// ReplaceForVideo atomically swaps the clip set of a video.
func (r *PostgresClipRepository) ReplaceForVideo(ctx context.Context, videoID string, clips []models.Clip) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin clip transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM clips WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("delete clips: %w", err)
	}

	batch := &pgx.Batch{}
	for _, clip := range clips {
		batch.Queue(`
            INSERT INTO clips (id, video_id, title, duration_sec, thumbnail_url, video_url, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, clip.ID, videoID, clip.Title, clip.DurationSec, clip.ThumbnailURL, clip.VideoURL, clip.CreatedAt)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return ErrNotFound
			}
			return fmt.Errorf("insert clips: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit clips: %w", err)
	}
	return nil
}

// ListForVideo returns the clips of a video in creation order.
func (r *PostgresClipRepository) ListForVideo(ctx context.Context, videoID string) ([]models.Clip, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, video_id, title, duration_sec, thumbnail_url, video_url, created_at
        FROM clips
        WHERE video_id = $1
        ORDER BY created_at ASC, id ASC
    `, videoID)
	if err != nil {
		return nil, fmt.Errorf("query clips: %w", err)
	}
	defer rows.Close()

	clips := []models.Clip{}
	for rows.Next() {
		var clip models.Clip
		if err := rows.Scan(&clip.ID, &clip.VideoID, &clip.Title, &clip.DurationSec, &clip.ThumbnailURL, &clip.VideoURL, &clip.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		clips = append(clips, clip)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clips: %w", err)
	}

	return clips, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
var _ ClipRepository = (*PostgresClipRepository)(nil)
