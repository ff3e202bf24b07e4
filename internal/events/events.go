// Package events carries the upload and clip-generation notifications exchanged with the clip workers.
package events

import (
	"context"
	"time"
)

const (
	// SubjectVideoUploaded is published once a video blob has been verified.
	SubjectVideoUploaded = "videos.uploaded"
	// SubjectClipsGenerated is published by the clip workers when a video has been processed.
	SubjectClipsGenerated = "clips.generated"
)

// VideoUploaded announces a verified upload ready for clip generation.
type VideoUploaded struct {
	VideoID     string    `json:"video_id"`
	OwnerID     string    `json:"owner_id"`
	BlobName    string    `json:"blob_name"`
	DurationSec int       `json:"duration_sec"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// GeneratedClip describes one clip produced by a worker.
type GeneratedClip struct {
	ID           string  `json:"clip_id"`
	Title        string  `json:"title"`
	DurationSec  float64 `json:"duration_sec"`
	ThumbnailURL string  `json:"thumbnail"`
	VideoURL     string  `json:"video_url"`
}

// ClipsGenerated reports the outcome of clip generation for a video.
type ClipsGenerated struct {
	VideoID string          `json:"video_id"`
	Status  string          `json:"status"`
	Clips   []GeneratedClip `json:"clips"`
	Error   string          `json:"error,omitempty"`
}

// Publisher emits upload notifications.
type Publisher interface {
	PublishVideoUploaded(ctx context.Context, event VideoUploaded) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

// PublishVideoUploaded implements Publisher.
func (NopPublisher) PublishVideoUploaded(context.Context, VideoUploaded) error { return nil }
