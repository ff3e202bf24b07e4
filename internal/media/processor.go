// Package media validates user-selected videos and derives their upload metadata: duration,
// content type and a letterboxed preview thumbnail. The source file is never modified.
package media

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"

	"github.com/clipforge/clipforge/internal/logging"
)

// Result is an accepted upload candidate.
type Result struct {
	File        File
	ContentType string
	// Duration is the measured length floored to whole seconds.
	Duration int
	Seconds  float64
	// Thumbnail is nil when preview generation failed; ThumbnailErr then says why.
	Thumbnail    *Thumbnail
	ThumbnailErr error
}

// Processor runs the pre-upload checks.
type Processor struct {
	Limits Limits
	Prober Prober
	Frames FrameGrabber
	Thumb  ThumbnailOptions
	Logger *slog.Logger
}

// NewProcessor wires a Processor with the provided collaborators.
func NewProcessor(limits Limits, prober Prober, frames FrameGrabber, thumb ThumbnailOptions, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Limits: limits, Prober: prober, Frames: frames, Thumb: thumb, Logger: logger}
}

// Duration reads the video length. Decoder failures are reported as a metadata
// ValidationError wrapping ErrMetadataUnreadable.
func (p *Processor) Duration(ctx context.Context, f File) (float64, error) {
	if p.Prober == nil {
		return 0, metadataError(errors.New("no prober configured"))
	}
	seconds, err := p.Prober.Duration(ctx, f.Path)
	if err != nil {
		return 0, metadataError(err)
	}
	return seconds, nil
}

// Thumbnail captures a frame near the configured offset and letterboxes it onto the
// thumbnail canvas. Failures wrap ErrThumbnail.
func (p *Processor) Thumbnail(ctx context.Context, f File, seconds float64) (*Thumbnail, error) {
	if p.Frames == nil {
		return nil, fmt.Errorf("%w: no frame grabber configured", ErrThumbnail)
	}

	opts := p.Thumb.withDefaults()

	frame, err := p.Frames.Frame(ctx, f.Path, seekOffset(opts.Offset, seconds))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrThumbnail, err)
	}

	thumb, err := encodeThumbnail(Letterbox(frame, opts.Width, opts.Height, color.Black), opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrThumbnail, err)
	}
	return thumb, nil
}

// Process validates f and derives its upload metadata. Type and size are checked before the
// file is decoded. A thumbnail failure is recorded on the Result and does not fail the call.
func (p *Processor) Process(ctx context.Context, f File) (Result, error) {
	ctx, span := logging.StartSpan(logging.EnsureLogger(ctx, p.Logger), "media.process", "file", f.Name)
	defer span.End()
	logger := logging.FromContext(ctx)

	if err := p.Limits.ValidateType(f); err != nil {
		return Result{}, err
	}
	if err := p.Limits.ValidateSize(f); err != nil {
		return Result{}, err
	}

	seconds, err := p.Duration(ctx, f)
	if err != nil {
		span.Fail(err)
		return Result{}, err
	}
	whole, err := p.Limits.ValidateDuration(seconds)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		File:        f,
		ContentType: ContentType(f),
		Duration:    whole,
		Seconds:     seconds,
	}

	thumb, err := p.Thumbnail(ctx, f, seconds)
	if err != nil {
		logger.Warn("thumbnail unavailable", "error", err)
		res.ThumbnailErr = err
	} else {
		res.Thumbnail = thumb
	}

	logger.Info("video accepted", "contentType", res.ContentType, "duration", res.Duration, "size", f.Size, "thumbnail", thumb != nil)
	return res, nil
}

func metadataError(err error) error {
	if !errors.Is(err, ErrMetadataUnreadable) {
		err = fmt.Errorf("%w: %w", ErrMetadataUnreadable, err)
	}
	return &ValidationError{Kind: KindMetadata, Message: "Could not read video metadata", Err: err}
}
