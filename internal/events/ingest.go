package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/models"
)

// ErrInvalidEvent indicates a message that cannot be applied.
var ErrInvalidEvent = errors.New("invalid clip event")

// VideoStatusWriter updates the processing state of a video.
type VideoStatusWriter interface {
	UpdateStatus(ctx context.Context, videoID, status string) error
}

// ClipWriter replaces the clip set of a video.
type ClipWriter interface {
	ReplaceForVideo(ctx context.Context, videoID string, clips []models.Clip) error
}

// ClipIngestor applies clips.generated events to the video and clip stores.
type ClipIngestor struct {
	Videos VideoStatusWriter
	Clips  ClipWriter
	Logger *slog.Logger
	now    func() time.Time
}

// NewClipIngestor constructs an ingestor.
func NewClipIngestor(videos VideoStatusWriter, clips ClipWriter, logger *slog.Logger) *ClipIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClipIngestor{Videos: videos, Clips: clips, Logger: logger, now: time.Now}
}

// Handle decodes and applies one clips.generated payload.
func (i *ClipIngestor) Handle(ctx context.Context, data []byte) error {
	var event ClipsGenerated
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return i.Apply(ctx, event)
}

// Apply stores the generated clips and marks the video completed, or marks it failed.
func (i *ClipIngestor) Apply(ctx context.Context, event ClipsGenerated) error {
	videoID := strings.TrimSpace(event.VideoID)
	if videoID == "" {
		return fmt.Errorf("%w: missing video_id", ErrInvalidEvent)
	}
	logger := i.Logger.With("video_id", videoID)

	if strings.EqualFold(event.Status, models.VideoStatusFailed) {
		logger.Warn("clip generation failed", "error", event.Error)
		if err := i.Videos.UpdateStatus(ctx, videoID, models.VideoStatusFailed); err != nil {
			return fmt.Errorf("mark video failed: %w", err)
		}
		return nil
	}

	now := i.now().UTC()
	clips := make([]models.Clip, 0, len(event.Clips))
	for idx, generated := range event.Clips {
		id := strings.TrimSpace(generated.ID)
		if id == "" {
			id = uuid.NewString()
		}
		title := strings.TrimSpace(generated.Title)
		if title == "" {
			title = fmt.Sprintf("Clip %d", idx+1)
		}
		clips = append(clips, models.Clip{
			ID:           id,
			VideoID:      videoID,
			Title:        title,
			DurationSec:  generated.DurationSec,
			ThumbnailURL: generated.ThumbnailURL,
			VideoURL:     generated.VideoURL,
			CreatedAt:    now.Add(time.Duration(idx) * time.Millisecond),
		})
	}

	if err := i.Clips.ReplaceForVideo(ctx, videoID, clips); err != nil {
		return fmt.Errorf("store clips: %w", err)
	}
	if err := i.Videos.UpdateStatus(ctx, videoID, models.VideoStatusCompleted); err != nil {
		return fmt.Errorf("mark video completed: %w", err)
	}

	logger.Info("clips ingested", "count", len(clips))
	return nil
}
