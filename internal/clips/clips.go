// Package clips reads the short clips generated for an uploaded video.
package clips

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/logging"
)

// Clip is a generated short, normalized from whichever field names the API used.
type Clip struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Duration  string    `json:"duration"`
	Thumbnail string    `json:"thumbnail"`
	VideoURL  string    `json:"videoUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// Video is an uploaded source video as listed on the dashboard.
type Video struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Status       string    `json:"status"`
	DurationSec  int       `json:"duration_sec"`
	ThumbnailURL string    `json:"thumbnail_url"`
	ClipCount    int       `json:"clip_count"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	idFields        = []string{"id", "clip_id"}
	titleFields     = []string{"title", "name"}
	secondsFields   = []string{"duration_sec", "duration_seconds", "durationSeconds", "durationSec"}
	videoURLFields  = []string{"videoUrl", "video_url"}
	createdAtFields = []string{"createdAt", "created_at"}
)

// Normalize maps one raw clip object onto Clip. index names clips that carry no identifier.
func Normalize(raw map[string]any, index int) Clip {
	clip := Clip{
		ID:        stringField(raw, idFields),
		Title:     stringField(raw, titleFields),
		Duration:  durationField(raw),
		Thumbnail: stringField(raw, []string{"thumbnail"}),
		VideoURL:  stringField(raw, videoURLFields),
		CreatedAt: time.Now().UTC(),
	}
	if clip.ID == "" {
		clip.ID = fmt.Sprintf("clip-%d", index)
	}
	if created := stringField(raw, createdAtFields); created != "" {
		if ts, err := time.Parse(time.RFC3339, created); err == nil {
			clip.CreatedAt = ts
		}
	}
	return clip
}

// FormatDuration renders whole seconds as "45s", "2m 5s", "2m" or "1h 2m 3s".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		m, s := seconds/60, seconds%60
		if s > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%dm", m)
	}

	parts := []string{fmt.Sprintf("%dh", seconds/3600)}
	if m := (seconds % 3600) / 60; m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if s := seconds % 60; s > 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}

// DecodeList accepts a bare array or an object wrapping the array in "clips" or "data".
func DecodeList(body []byte) ([]Clip, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode clips: %w", err)
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		if list, ok := v["clips"].([]any); ok {
			items = list
		} else if list, ok := v["data"].([]any); ok {
			items = list
		}
	}

	out := make([]Clip, 0, len(items))
	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Normalize(raw, i))
	}
	return out, nil
}

func stringField(raw map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func durationField(raw map[string]any) string {
	for _, key := range secondsFields {
		switch v := raw[key].(type) {
		case float64:
			return FormatDuration(int(math.Floor(v)))
		case string:
			seconds, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				seconds = 0
			}
			return FormatDuration(int(math.Floor(seconds)))
		}
	}
	if d := stringField(raw, []string{"duration"}); d != "" {
		return d
	}
	return "0:00"
}

// API is the subset of the authenticated client used for listings.
type API interface {
	DoJSON(ctx context.Context, method, path string, query url.Values, in, out any) error
}

// Service lists clips and videos.
type Service struct {
	API    API
	Logger *slog.Logger
}

// NewService wraps api.
func NewService(api API, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{API: api, Logger: logger}
}

// List returns the clips generated for videoID. A failed request is returned as an error;
// a video without clips yields an empty, non-nil slice.
func (s *Service) List(ctx context.Context, videoID string) ([]Clip, error) {
	if strings.TrimSpace(videoID) == "" {
		return nil, errors.New("video id is required")
	}

	var body json.RawMessage
	query := url.Values{"videoId": {videoID}}
	if err := s.API.DoJSON(ctx, http.MethodGet, "/videoInputOutput/getClipsFromVideoId", query, nil, &body); err != nil {
		return nil, fmt.Errorf("list clips for %s: %w", videoID, err)
	}
	if len(body) == 0 {
		return []Clip{}, nil
	}
	return DecodeList(body)
}

// Wait polls List every interval until at least one clip exists or ctx ends. Transient
// listing errors are logged and retried; an expired session ends the wait.
func (s *Service) Wait(ctx context.Context, videoID string, interval time.Duration, isFatal func(error) bool) ([]Clip, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	logger := logging.FromContext(logging.EnsureLogger(ctx, s.Logger))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		clips, err := s.List(ctx, videoID)
		switch {
		case err == nil && len(clips) > 0:
			return clips, nil
		case err != nil && isFatal != nil && isFatal(err):
			return nil, err
		case err != nil:
			logger.Warn("clip poll failed", "videoId", videoID, "error", err)
		default:
			logger.Debug("clips not ready", "videoId", videoID)
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return nil, errors.Join(ctx.Err(), err)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Videos returns the caller's uploaded videos, newest first.
func (s *Service) Videos(ctx context.Context) ([]Video, error) {
	var body json.RawMessage
	if err := s.API.DoJSON(ctx, http.MethodGet, "/videos", nil, nil, &body); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}

	var wrapped struct {
		Videos []Video `json:"videos"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Videos != nil {
		return wrapped.Videos, nil
	}
	var bare []Video
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, fmt.Errorf("decode videos: %w", err)
	}
	if bare == nil {
		bare = []Video{}
	}
	return bare, nil
}
