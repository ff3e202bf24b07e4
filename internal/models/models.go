package models

import "time"

// User represents an account within ClipForge.
type User struct {
	ID        string
	Email     string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"authToken"`
	AccessExpiresAt  time.Time `json:"authTokenExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

const (
	VideoStatusUploading  = "uploading"
	VideoStatusProcessing = "processing"
	VideoStatusCompleted  = "completed"
	VideoStatusFailed     = "failed"
)

// Video is an uploaded source video and its processing state.
type Video struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"-"`
	BlobName     string    `json:"filename"`
	Status       string    `json:"status"`
	DurationSec  int       `json:"duration_sec"`
	ThumbnailURL string    `json:"thumbnail_url"`
	ClipCount    int       `json:"clip_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clip is a short generated from a Video.
type Clip struct {
	ID           string    `json:"clip_id"`
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	DurationSec  float64   `json:"duration_sec"`
	ThumbnailURL string    `json:"thumbnail"`
	VideoURL     string    `json:"video_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// UploadSlot is a presigned write destination handed to a client.
type UploadSlot struct {
	URL       string    `json:"sas_url"`
	BlobName  string    `json:"blob_name"`
	ExpiresAt time.Time `json:"expires_at"`
}
