package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/repositories"
)

const (
	defaultSlotExpiry    = 2 * time.Hour
	defaultMaxSlotExpiry = 24 * time.Hour
	defaultThumbnailMax  = 5 << 20
)

// UploadHandler issues upload slots and records verified uploads.
type UploadHandler struct {
	Videos            VideoStore
	Objects           ObjectStore
	Events            events.Publisher
	AllowedExtensions []string
	MaxSlotExpiry     time.Duration
	ThumbnailPrefix   string
	MaxThumbnailBytes int64
	NowFunc           func() time.Time
}

// GenerateUploadURL handles GET /api/video-upload/generate-upload-url.
func (h UploadHandler) GenerateUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	ownerID := logging.UserIDFromContext(ctx)

	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(r.URL.Query().Get("file_extension")), "."))
	if ext == "" {
		respondError(ctx, w, http.StatusBadRequest, "file_extension is required")
		return
	}
	if !h.extensionAllowed(ext) {
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("file extension %q is not allowed", ext))
		return
	}

	expiry, err := h.slotExpiry(r.URL.Query().Get("expiry_hours"))
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	blobName := fmt.Sprintf("%s.%s", uuid.NewString(), ext)
	url, err := h.Objects.PresignPut(ctx, blobName, expiry)
	if err != nil {
		logger.Error("presign upload slot", "error", err, "blob", blobName)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create upload url")
		return
	}

	now := h.now()
	video := models.Video{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		BlobName:  blobName,
		Status:    models.VideoStatusUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Videos.Create(ctx, video); err != nil {
		logger.Error("record pending upload", "error", err, "blob", blobName)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create upload url")
		return
	}

	logger.Info("upload slot issued", "video_id", video.ID, "blob", blobName, "expiry", expiry)
	respondJSON(ctx, w, http.StatusOK, models.UploadSlot{
		URL:       url,
		BlobName:  blobName,
		ExpiresAt: now.Add(expiry),
	})
}

// UploadThumbnail handles PUT /api/video-upload/thumbnail?filename=.
func (h UploadHandler) UploadThumbnail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	ownerID := logging.UserIDFromContext(ctx)

	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		respondError(ctx, w, http.StatusBadRequest, "filename is required")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		respondError(ctx, w, http.StatusUnsupportedMediaType, "thumbnail must be an image")
		return
	}

	if _, err := h.Videos.FindByBlobName(ctx, ownerID, filename); err != nil {
		h.videoLookupFailed(w, r, err)
		return
	}

	limit := h.MaxThumbnailBytes
	if limit <= 0 {
		limit = defaultThumbnailMax
	}
	body := http.MaxBytesReader(w, r.Body, limit)

	key := path.Join(h.thumbnailPrefix(), strings.TrimSuffix(filename, path.Ext(filename))+thumbnailExt(contentType))
	location, err := h.Objects.Save(ctx, key, contentType, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "thumbnail is too large")
			return
		}
		logger.Error("store thumbnail", "error", err, "key", key)
		respondError(ctx, w, http.StatusInternalServerError, "unable to store thumbnail")
		return
	}

	if err := h.Videos.SetThumbnail(ctx, ownerID, filename, location); err != nil {
		logger.Error("record thumbnail", "error", err, "blob", filename)
		respondError(ctx, w, http.StatusInternalServerError, "unable to store thumbnail")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"thumbnail_url": location})
}

// VerifyUpload handles POST /api/video-upload/verify-upload.
func (h UploadHandler) VerifyUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	ownerID := logging.UserIDFromContext(ctx)

	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	video, err := h.Videos.FindByBlobName(ctx, ownerID, req.Filename)
	if err != nil {
		h.videoLookupFailed(w, r, err)
		return
	}

	if video.Status != models.VideoStatusUploading {
		respondJSON(ctx, w, http.StatusOK, verifyResponse{VideoID: video.ID, Status: video.Status})
		return
	}

	exists, err := h.Objects.Exists(ctx, video.BlobName)
	if err != nil {
		logger.Error("check uploaded blob", "error", err, "blob", video.BlobName)
		respondError(ctx, w, http.StatusBadGateway, "unable to verify upload")
		return
	}
	if !exists {
		respondError(ctx, w, http.StatusConflict, "uploaded file not found")
		return
	}

	duration := int(math.Round(req.Duration))
	if err := h.Videos.MarkUploaded(ctx, video.ID, duration); err != nil {
		logger.Error("mark video uploaded", "error", err, "video_id", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify upload")
		return
	}

	if h.Events != nil {
		event := events.VideoUploaded{
			VideoID:     video.ID,
			OwnerID:     ownerID,
			BlobName:    video.BlobName,
			DurationSec: duration,
			UploadedAt:  h.now(),
		}
		if err := h.Events.PublishVideoUploaded(ctx, event); err != nil {
			logger.Error("publish upload event", "error", err, "video_id", video.ID)
		}
	}

	logger.Info("upload verified", "video_id", video.ID, "duration", duration)
	respondJSON(ctx, w, http.StatusOK, verifyResponse{VideoID: video.ID, Status: models.VideoStatusProcessing})
}

type verifyRequest struct {
	Filename string  `json:"filename" validate:"required"`
	Duration float64 `json:"duration" validate:"min=0,max=86400"`
}

type verifyResponse struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}

func (h UploadHandler) videoLookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, http.StatusNotFound, "video not found")
		return
	}
	logging.FromContext(ctx).Error("video lookup failed", "error", err)
	respondError(ctx, w, http.StatusInternalServerError, "unable to load video")
}

func (h UploadHandler) extensionAllowed(ext string) bool {
	for _, allowed := range h.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(allowed, "."), ext) {
			return true
		}
	}
	return false
}

func (h UploadHandler) slotExpiry(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultSlotExpiry, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("expiry_hours must be an integer")
	}

	maxExpiry := h.MaxSlotExpiry
	if maxExpiry <= 0 {
		maxExpiry = defaultMaxSlotExpiry
	}
	// Clamp in whole hours before converting to a Duration.
	maxHours := int(maxExpiry / time.Hour)
	if maxHours < 1 {
		maxHours = 1
	}
	hours = min(max(hours, 1), maxHours)
	expiry := time.Duration(hours) * time.Hour
	return expiry, nil
}

func (h UploadHandler) thumbnailPrefix() string {
	if prefix := strings.Trim(h.ThumbnailPrefix, "/"); prefix != "" {
		return prefix
	}
	return "thumbnails"
}

func thumbnailExt(contentType string) string {
	switch strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func (h UploadHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
