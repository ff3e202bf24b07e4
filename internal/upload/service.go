// Package upload drives a video upload attempt: local validation, slot issuance, the direct
// blob write and the final verification call.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/media"
)

// ErrCancelled is returned when the user declines verification after the blob write.
var ErrCancelled = errors.New("upload cancelled before verification")

// API is the subset of the authenticated client the upload flow needs.
type API interface {
	DoJSON(ctx context.Context, method, path string, query url.Values, in, out any) error
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
	URL(path string, query url.Values) string
}

// Preparer validates a candidate file and derives its metadata.
type Preparer interface {
	Process(ctx context.Context, f media.File) (media.Result, error)
}

// Verification is the server's acknowledgement of a completed upload.
type Verification struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}

// Hooks let an interactive caller observe and gate an upload.
type Hooks struct {
	// Progress receives whole-percent transfer progress.
	Progress func(percent int, sent, total int64)
	// Confirm is asked before the verify call; returning false abandons the attempt.
	Confirm func(ctx context.Context, res media.Result, slot Slot) bool
	// Accepted is called once local validation succeeds.
	Accepted func(res media.Result)
}

// Outcome summarises a completed attempt.
type Outcome struct {
	Result       media.Result
	Slot         Slot
	Verification Verification
}

// Service runs upload attempts against the API.
type Service struct {
	API        API
	Preparer   Preparer
	Blob       BlobWriter
	SlotExpiry time.Duration
	Flow       *Flow
	Logger     *slog.Logger
}

// NewService wires a Service with a fresh Flow.
func NewService(api API, preparer Preparer, blob BlobWriter, slotExpiry time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{API: api, Preparer: preparer, Blob: blob, SlotExpiry: slotExpiry, Flow: NewFlow(), Logger: logger}
}

// Verify confirms the uploaded blob is ready for processing.
func (s *Service) Verify(ctx context.Context, filename string, duration int) (Verification, error) {
	var out Verification
	payload := map[string]any{"filename": filename, "duration": duration}
	if err := s.API.DoJSON(ctx, http.MethodPost, "/video-upload/verify-upload", nil, payload, &out); err != nil {
		return Verification{}, fmt.Errorf("verify upload: %w", err)
	}
	return out, nil
}

// UploadThumbnail sends the preview image for filename. Failures only degrade the preview,
// so they are logged and returned for callers that care.
func (s *Service) UploadThumbnail(ctx context.Context, filename string, thumb *media.Thumbnail) error {
	if thumb == nil {
		return nil
	}
	logger := logging.FromContext(ctx)

	body, err := thumb.Open()
	if err != nil {
		logger.Warn("thumbnail unreadable", "error", err)
		return err
	}
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		s.API.URL("/video-upload/thumbnail", url.Values{"filename": {filename}}), body)
	if err != nil {
		return fmt.Errorf("build thumbnail request: %w", err)
	}
	req.Header.Set("Content-Type", thumb.ContentType)

	resp, err := s.API.Do(ctx, req)
	if err != nil {
		logger.Warn("thumbnail upload failed", "error", err, "filename", filename)
		return err
	}
	resp.Body.Close()
	return nil
}

// Run performs a full upload attempt for the file at path. Any failure leaves the flow in
// StateFailed; a successful attempt leaves it in StateComplete.
func (s *Service) Run(ctx context.Context, path string, hooks Hooks) (out Outcome, err error) {
	if s.Flow == nil {
		s.Flow = NewFlow()
	}
	if st := s.Flow.State(); st == StateComplete || st == StateFailed {
		if err := s.Flow.Reset(); err != nil {
			return Outcome{}, err
		}
	}
	if err := s.Flow.To(StateValidating); err != nil {
		return Outcome{}, err
	}

	ctx, span := logging.StartSpan(logging.EnsureLogger(ctx, s.Logger), "upload.run", "path", path)
	defer span.End()
	logger := logging.FromContext(ctx)

	var res media.Result
	defer func() {
		if res.Thumbnail != nil {
			if revokeErr := res.Thumbnail.Revoke(); revokeErr != nil {
				logger.Warn("revoke thumbnail", "error", revokeErr)
			}
			out.Result.Thumbnail = nil
		}
		if err != nil {
			span.Fail(err)
			_ = s.Flow.Fail(err)
		}
	}()

	file, err := media.Stat(path)
	if err != nil {
		return Outcome{}, err
	}
	res, err = s.Preparer.Process(ctx, file)
	if err != nil {
		return Outcome{}, err
	}
	if hooks.Accepted != nil {
		hooks.Accepted(res)
	}

	if err = s.Flow.To(StateUploading); err != nil {
		return Outcome{}, err
	}

	slot, err := s.RequestSlot(ctx, file.Ext())
	if err != nil {
		return Outcome{}, err
	}
	logger.Info("upload slot issued", "blob", slot.BlobName, "expiresAt", slot.ExpiresAt)

	var progressMu sync.Mutex
	lastPercent := -1
	progress := func(sent, total int64) {
		if total <= 0 {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		percent := int(sent * 100 / total)
		s.Flow.SetProgress(percent)
		if percent != lastPercent && hooks.Progress != nil {
			lastPercent = percent
			hooks.Progress(percent, sent, total)
		}
	}
	if err = s.Blob.Write(ctx, slot, file.Path, res.ContentType, progress); err != nil {
		return Outcome{}, err
	}

	if err = s.Flow.To(StateVerifying); err != nil {
		return Outcome{}, err
	}
	if hooks.Confirm != nil && !hooks.Confirm(ctx, res, slot) {
		return Outcome{}, ErrCancelled
	}

	_ = s.UploadThumbnail(ctx, slot.BlobName, res.Thumbnail)

	verification, err := s.Verify(ctx, slot.BlobName, res.Duration)
	if err != nil {
		return Outcome{}, err
	}
	if err = s.Flow.To(StateComplete); err != nil {
		return Outcome{}, err
	}

	logger.Info("upload verified", "videoId", verification.VideoID, "status", verification.Status)
	return Outcome{Result: res, Slot: slot, Verification: verification}, nil
}
