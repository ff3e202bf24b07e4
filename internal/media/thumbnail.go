package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// FrameGrabber decodes a single frame of a video at the given offset.
type FrameGrabber interface {
	Frame(ctx context.Context, path string, at time.Duration) (image.Image, error)
}

// FFmpeg captures frames with the ffmpeg CLI.
type FFmpeg struct {
	Binary  string
	Run     CommandRunner
	Timeout time.Duration
}

// NewFFmpeg constructs a FrameGrabber that shells out to ffmpeg.
func NewFFmpeg(binary string, timeout time.Duration) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FFmpeg{Binary: binary, Run: defaultCommandRunner, Timeout: timeout}
}

// Frame seeks to at and returns the decoded frame.
func (f *FFmpeg) Frame(ctx context.Context, path string, at time.Duration) (image.Image, error) {
	run := f.Run
	if run == nil {
		run = defaultCommandRunner
	}

	execCtx, cancel := withTimeout(ctx, f.Timeout)
	defer cancel()

	out, err := run(execCtx, f.Binary,
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame capture: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("ffmpeg produced no frame")
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode captured frame: %w", err)
	}
	return img, nil
}

// Letterbox scales src to fit inside a width x height canvas without cropping or distortion.
// The uncovered axis is filled with fill and the image is centred.
func Letterbox(src image.Image, width, height int, fill color.Color) *image.NRGBA {
	canvas := imaging.New(width, height, fill)

	bounds := src.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()
	if sw == 0 || sh == 0 || width <= 0 || height <= 0 {
		return canvas
	}

	scale := math.Min(float64(width)/float64(sw), float64(height)/float64(sh))
	dw := max(1, min(width, int(math.Round(float64(sw)*scale))))
	dh := max(1, min(height, int(math.Round(float64(sh)*scale))))

	scaled := imaging.Resize(src, dw, dh, imaging.Lanczos)
	return imaging.Paste(canvas, scaled, image.Pt((width-dw)/2, (height-dh)/2))
}

// ThumbnailOptions control frame selection and encoding.
type ThumbnailOptions struct {
	Width   int
	Height  int
	Offset  time.Duration
	Quality int
	// Dir holds the encoded thumbnails; empty means the OS temp directory.
	Dir string
}

// DefaultThumbnailOptions renders a 1280x720 JPEG from the frame one second in.
func DefaultThumbnailOptions() ThumbnailOptions {
	return ThumbnailOptions{Width: 1280, Height: 720, Offset: time.Second, Quality: 85}
}

// withDefaults fills unset geometry, offset and quality from DefaultThumbnailOptions.
func (o ThumbnailOptions) withDefaults() ThumbnailOptions {
	defaults := DefaultThumbnailOptions()
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = defaults.Width, defaults.Height
	}
	if o.Offset <= 0 {
		o.Offset = defaults.Offset
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = defaults.Quality
	}
	return o
}

// Thumbnail is an encoded preview image held in a temporary file until revoked.
type Thumbnail struct {
	Path        string
	Width       int
	Height      int
	ContentType string

	once sync.Once
	err  error
}

// Open returns a reader over the encoded image.
func (t *Thumbnail) Open() (io.ReadCloser, error) {
	return os.Open(t.Path)
}

// Revoke deletes the backing file. It is safe to call more than once.
func (t *Thumbnail) Revoke() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.err = err
		}
	})
	return t.err
}

// seekOffset keeps the capture point inside videos shorter than the configured offset.
func seekOffset(offset time.Duration, seconds float64) time.Duration {
	if seconds <= 0 {
		return offset
	}
	length := time.Duration(seconds * float64(time.Second))
	if offset >= length {
		return length / 2
	}
	return offset
}

func encodeThumbnail(img image.Image, opts ThumbnailOptions) (thumb *Thumbnail, err error) {
	f, err := os.CreateTemp(opts.Dir, "clipforge-thumbnail-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create thumbnail file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	if err = imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("close thumbnail file: %w", err)
	}

	b := img.Bounds()
	return &Thumbnail{Path: f.Name(), Width: b.Dx(), Height: b.Dy(), ContentType: "image/jpeg"}, nil
}
