package media

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidateType(t *testing.T) {
	limits := DefaultLimits()

	for _, name := range []string{"movie.mp4", "movie.MP4", "clip.Mov", "a.b.mkv", "x.wmv", "y.avi"} {
		if err := limits.ValidateType(File{Name: name}); err != nil {
			t.Fatalf("expected %s to be accepted, got %v", name, err)
		}
	}

	for _, name := range []string{"movie.txt", "mp4", "movie.mp4.exe", "movie."} {
		err := limits.ValidateType(File{Name: name})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Kind != KindType {
			t.Fatalf("expected type rejection for %s, got %v", name, err)
		}
		want := "Invalid file type: please upload a video file (MP4, MOV, AVI, MKV, or WMV)"
		if vErr.Message != want {
			t.Fatalf("unexpected message %q", vErr.Message)
		}
	}
}

func TestValidateSize(t *testing.T) {
	limits := DefaultLimits()

	if err := limits.ValidateSize(File{Size: 30 * bytesPerMB}); err != nil {
		t.Fatalf("expected file at the ceiling to pass, got %v", err)
	}

	err := limits.ValidateSize(File{Size: 31 * bytesPerMB})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Kind != KindSize {
		t.Fatalf("expected size rejection, got %v", err)
	}
	if vErr.Message != "File is too large (31.00 MB). Maximum size is 30 MB." {
		t.Fatalf("unexpected message %q", vErr.Message)
	}
}

func TestValidateDuration(t *testing.T) {
	limits := DefaultLimits()

	whole, err := limits.ValidateDuration(20.9)
	if err != nil || whole != 20 {
		t.Fatalf("expected 20.9s to floor to 20 and pass, got %d, %v", whole, err)
	}

	whole, err = limits.ValidateDuration(25.4)
	if whole != 25 {
		t.Fatalf("expected floored 25, got %d", whole)
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Kind != KindDuration {
		t.Fatalf("expected duration rejection, got %v", err)
	}
	if !strings.Contains(vErr.Message, "25s") || !strings.Contains(vErr.Message, "20s") {
		t.Fatalf("unexpected message %q", vErr.Message)
	}
}

func TestValidateDurationOutOfRange(t *testing.T) {
	limits := DefaultLimits()

	tests := []struct {
		name    string
		seconds float64
		kind    ValidationKind
	}{
		{name: "positive infinity", seconds: math.Inf(1), kind: KindDuration},
		{name: "huge", seconds: 1e20, kind: KindDuration},
		{name: "just above int32", seconds: math.MaxInt32 + 1, kind: KindDuration},
		{name: "not a number", seconds: math.NaN(), kind: KindMetadata},
		{name: "negative infinity", seconds: math.Inf(-1), kind: KindMetadata},
		{name: "negative", seconds: -3, kind: KindMetadata},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			whole, err := limits.ValidateDuration(tc.seconds)
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Kind != tc.kind {
				t.Fatalf("expected %s rejection, got %d, %v", tc.kind, whole, err)
			}
			if whole < 0 {
				t.Fatalf("expected non-negative duration, got %d", whole)
			}
		})
	}

	if _, err := limits.ValidateDuration(math.NaN()); !errors.Is(err, ErrMetadataUnreadable) {
		t.Fatalf("expected NaN to be unreadable metadata, got %v", err)
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		file File
		want string
	}{
		{File{Name: "a.MP4"}, "video/mp4"},
		{File{Name: "a.mov"}, "video/quicktime"},
		{File{Name: "a.avi"}, "video/x-msvideo"},
		{File{Name: "a.mkv"}, "video/x-matroska"},
		{File{Name: "a.wmv"}, "video/x-ms-wmv"},
		{File{Name: "a.webm", ReportedType: "video/webm"}, "video/webm"},
		{File{Name: "a.bin"}, "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentType(tt.file); got != tt.want {
			t.Fatalf("ContentType(%s) = %q, want %q", tt.file.Name, got, tt.want)
		}
	}
}
