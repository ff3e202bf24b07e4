package media

import (
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type stubProber struct {
	seconds float64
	err     error
}

func (s stubProber) Duration(ctx context.Context, path string) (float64, error) {
	return s.seconds, s.err
}

type stubFrames struct {
	img   image.Image
	err   error
	calls int
	at    time.Duration
}

func (s *stubFrames) Frame(ctx context.Context, path string, at time.Duration) (image.Image, error) {
	s.calls++
	s.at = at
	return s.img, s.err
}

func newTestProcessor(t *testing.T, prober Prober, frames FrameGrabber) (*Processor, string) {
	t.Helper()
	dir := t.TempDir()
	opts := DefaultThumbnailOptions()
	opts.Dir = dir
	return NewProcessor(DefaultLimits(), prober, frames, opts, nil), dir
}

func entries(t *testing.T, dir string) int {
	t.Helper()
	list, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(list)
}

func TestProcessAcceptsValidVideo(t *testing.T) {
	frames := &stubFrames{img: solid(1920, 1080)}
	p, dir := newTestProcessor(t, stubProber{seconds: 12.7}, frames)

	res, err := p.Process(context.Background(), File{Name: "holiday.MOV", Path: "/tmp/holiday.MOV", Size: 1024})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.ContentType != "video/quicktime" || res.Duration != 12 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Thumbnail == nil || res.ThumbnailErr != nil {
		t.Fatalf("expected thumbnail, got err %v", res.ThumbnailErr)
	}
	if frames.at != time.Second {
		t.Fatalf("expected capture at 1s, got %v", frames.at)
	}
	if entries(t, dir) != 1 {
		t.Fatal("expected one thumbnail file")
	}
	if err := res.Thumbnail.Revoke(); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if entries(t, dir) != 0 {
		t.Fatal("expected thumbnail removed after revoke")
	}
}

func TestProcessRejectsBeforeDecoding(t *testing.T) {
	frames := &stubFrames{img: solid(10, 10)}
	p, _ := newTestProcessor(t, stubProber{err: errors.New("must not be called")}, frames)

	_, err := p.Process(context.Background(), File{Name: "notes.txt", Size: 10})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Kind != KindType {
		t.Fatalf("expected type rejection, got %v", err)
	}

	_, err = p.Process(context.Background(), File{Name: "big.mp4", Size: 31 * bytesPerMB})
	if !errors.As(err, &vErr) || vErr.Kind != KindSize {
		t.Fatalf("expected size rejection, got %v", err)
	}
	if frames.calls != 0 {
		t.Fatal("frame grabber must not run for rejected files")
	}
}

func TestProcessMetadataFailure(t *testing.T) {
	p, dir := newTestProcessor(t, stubProber{err: errors.New("moov atom not found")}, &stubFrames{img: solid(10, 10)})

	_, err := p.Process(context.Background(), File{Name: "broken.mp4", Size: 10})
	if !errors.Is(err, ErrMetadataUnreadable) {
		t.Fatalf("expected ErrMetadataUnreadable, got %v", err)
	}
	if err.Error() != "Could not read video metadata" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if entries(t, dir) != 0 {
		t.Fatal("expected no temporary files after metadata failure")
	}
}

func TestProcessRejectsLongVideo(t *testing.T) {
	frames := &stubFrames{img: solid(10, 10)}
	p, _ := newTestProcessor(t, stubProber{seconds: 25.2}, frames)

	_, err := p.Process(context.Background(), File{Name: "long.mkv", Size: 10})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Kind != KindDuration {
		t.Fatalf("expected duration rejection, got %v", err)
	}
	if vErr.Message != "Video is too long (25s). Maximum duration is 20s." {
		t.Fatalf("unexpected message %q", vErr.Message)
	}
	if frames.calls != 0 {
		t.Fatal("thumbnail must not be generated for rejected video")
	}
}

func TestProcessThumbnailFailureDoesNotBlock(t *testing.T) {
	p, dir := newTestProcessor(t, stubProber{seconds: 5}, &stubFrames{err: errors.New("decoder crashed")})

	res, err := p.Process(context.Background(), File{Name: "ok.mp4", Size: 10})
	if err != nil {
		t.Fatalf("thumbnail failure must not fail processing: %v", err)
	}
	if res.Thumbnail != nil || !errors.Is(res.ThumbnailErr, ErrThumbnail) {
		t.Fatalf("expected thumbnail error, got %+v", res)
	}
	if entries(t, dir) != 0 {
		t.Fatal("expected no temporary files after thumbnail failure")
	}
}

func TestProcessRejectsNonFiniteDuration(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		kind    ValidationKind
	}{
		{name: "infinite", seconds: math.Inf(1), kind: KindDuration},
		{name: "huge", seconds: 1e20, kind: KindDuration},
		{name: "nan", seconds: math.NaN(), kind: KindMetadata},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frames := &stubFrames{img: solid(10, 10)}
			p, dir := newTestProcessor(t, stubProber{seconds: tc.seconds}, frames)

			_, err := p.Process(context.Background(), File{Name: "odd.mp4", Size: 10})
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Kind != tc.kind {
				t.Fatalf("expected %s rejection, got %v", tc.kind, err)
			}
			if frames.calls != 0 || entries(t, dir) != 0 {
				t.Fatal("rejected video must not produce a thumbnail")
			}
		})
	}
}

func TestThumbnailDefaultsFillZeroOptions(t *testing.T) {
	frames := &stubFrames{img: solid(1920, 1080)}
	p := NewProcessor(DefaultLimits(), stubProber{seconds: 10}, frames, ThumbnailOptions{Dir: t.TempDir()}, nil)

	thumb, err := p.Thumbnail(context.Background(), File{Name: "a.mp4", Path: "a.mp4"}, 10)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	defer thumb.Revoke()

	if frames.at != time.Second {
		t.Fatalf("expected default capture offset of 1s, got %v", frames.at)
	}
	if thumb.Width != 1280 || thumb.Height != 720 {
		t.Fatalf("expected default 1280x720 canvas, got %dx%d", thumb.Width, thumb.Height)
	}
}

func TestZeroRunnerIsNotMutated(t *testing.T) {
	probe := &FFprobe{Binary: filepath.Join(t.TempDir(), "missing-ffprobe"), Timeout: time.Second}
	grabber := &FFmpeg{Binary: filepath.Join(t.TempDir(), "missing-ffmpeg"), Timeout: time.Second}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := probe.Duration(context.Background(), "in.mp4"); !errors.Is(err, ErrMetadataUnreadable) {
				t.Errorf("expected ErrMetadataUnreadable, got %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := grabber.Frame(context.Background(), "in.mp4", time.Second); err == nil {
				t.Error("expected missing ffmpeg to fail")
			}
		}()
	}
	wg.Wait()

	if probe.Run != nil || grabber.Run != nil {
		t.Fatal("expected zero runners to stay unset")
	}
}

func TestFFprobeDuration(t *testing.T) {
	probe := NewFFprobe("", time.Second)
	probe.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		if binary != "ffprobe" || args[len(args)-1] != "in.mp4" {
			t.Fatalf("unexpected invocation %s %v", binary, args)
		}
		return []byte(`{"format":{"duration":"12.480000"}}`), nil
	}

	seconds, err := probe.Duration(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("Duration() error = %v", err)
	}
	if seconds != 12.48 {
		t.Fatalf("unexpected duration %v", seconds)
	}
}

func TestFFprobeDurationFailures(t *testing.T) {
	outputs := map[string]string{
		"missing duration": `{"format":{}}`,
		"not a number":     `{"format":{"duration":"N/A"}}`,
		"invalid json":     `nope`,
		"infinite":         `{"format":{"duration":"inf"}}`,
		"negative inf":     `{"format":{"duration":"-Inf"}}`,
		"nan":              `{"format":{"duration":"NaN"}}`,
		"negative":         `{"format":{"duration":"-1.5"}}`,
	}
	for name, out := range outputs {
		t.Run(name, func(t *testing.T) {
			probe := NewFFprobe("ffprobe", time.Second)
			probe.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
				return []byte(out), nil
			}
			if _, err := probe.Duration(context.Background(), "in.mp4"); !errors.Is(err, ErrMetadataUnreadable) {
				t.Fatalf("expected ErrMetadataUnreadable, got %v", err)
			}
		})
	}
}

func TestStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Clip.MP4")
	if err := os.WriteFile(path, []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if f.Name != "Clip.MP4" || f.Ext() != "mp4" || f.Size != 24 {
		t.Fatalf("unexpected file %+v", f)
	}
	if f.ReportedType != "video/mp4" {
		t.Fatalf("expected sniffed video/mp4, got %q", f.ReportedType)
	}

	if _, err := Stat(dir); err == nil {
		t.Fatal("expected error for directory")
	}
}
