package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/repositories"
)

// VideoHandler serves the caller's videos and their generated clips.
type VideoHandler struct {
	Videos    VideoStore
	ClipStore ClipStore
}

// List handles GET /api/videos.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := logging.UserIDFromContext(ctx)

	videos, err := h.Videos.ListForOwner(ctx, ownerID)
	if err != nil {
		logging.FromContext(ctx).Error("list videos", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load videos")
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"videos": videos})
}

// Clips handles GET /api/videoInputOutput/getClipsFromVideoId?videoId=.
func (h VideoHandler) Clips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	videoID := strings.TrimSpace(r.URL.Query().Get("videoId"))
	if videoID == "" {
		respondError(ctx, w, http.StatusBadRequest, "videoId is required")
		return
	}

	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("load video", "error", err, "video_id", videoID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load clips")
		return
	}
	// Another owner's video is reported as missing.
	if err != nil || video.OwnerID != logging.UserIDFromContext(ctx) {
		respondError(ctx, w, http.StatusNotFound, "video not found")
		return
	}

	clips, err := h.ClipStore.ListForVideo(ctx, videoID)
	if err != nil {
		logger.Error("list clips", "error", err, "video_id", videoID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load clips")
		return
	}
	if clips == nil {
		clips = []models.Clip{}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"clips": clips})
}
