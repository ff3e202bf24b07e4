package media

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

const bytesPerMB = 1024 * 1024

var contentTypes = map[string]string{
	"mp4": "video/mp4",
	"mov": "video/quicktime",
	"avi": "video/x-msvideo",
	"mkv": "video/x-matroska",
	"wmv": "video/x-ms-wmv",
}

// Limits are the acceptance rules applied to an upload candidate.
type Limits struct {
	AllowedExtensions []string
	MaxBytes          int64
	MaxDuration       time.Duration
}

// DefaultLimits accepts MP4, MOV, AVI, MKV and WMV files up to 30 MB and 20 seconds.
func DefaultLimits() Limits {
	return Limits{
		AllowedExtensions: []string{"mp4", "mov", "avi", "mkv", "wmv"},
		MaxBytes:          30 * bytesPerMB,
		MaxDuration:       20 * time.Second,
	}
}

// ValidateType accepts only allow-listed extensions, case-insensitively.
func (l Limits) ValidateType(f File) error {
	ext := f.Ext()
	allowed := slices.ContainsFunc(l.AllowedExtensions, func(candidate string) bool {
		return strings.EqualFold(strings.TrimPrefix(candidate, "."), ext)
	})
	if ext == "" || !allowed {
		return &ValidationError{
			Kind:    KindType,
			Message: fmt.Sprintf("Invalid file type: please upload a video file (%s)", describeExtensions(l.AllowedExtensions)),
		}
	}
	return nil
}

// ValidateSize rejects files above the byte ceiling.
func (l Limits) ValidateSize(f File) error {
	if l.MaxBytes > 0 && f.Size > l.MaxBytes {
		return &ValidationError{
			Kind: KindSize,
			Message: fmt.Sprintf("File is too large (%.2f MB). Maximum size is %s MB.",
				float64(f.Size)/bytesPerMB, formatMB(l.MaxBytes)),
		}
	}
	return nil
}

// ValidateDuration rejects videos whose floored duration exceeds the ceiling. Negative or
// non-finite durations are unreadable metadata; durations beyond MaxInt32 seconds are too long.
func (l Limits) ValidateDuration(seconds float64) (int, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, -1) || seconds < 0 {
		return 0, metadataError(fmt.Errorf("duration %v", seconds))
	}
	limit := int(l.MaxDuration / time.Second)
	if math.IsInf(seconds, 1) || seconds > math.MaxInt32 {
		return 0, &ValidationError{
			Kind:    KindDuration,
			Message: fmt.Sprintf("Video is too long. Maximum duration is %ds.", limit),
		}
	}

	whole := int(math.Floor(seconds))
	if l.MaxDuration > 0 && whole > limit {
		return whole, &ValidationError{
			Kind:    KindDuration,
			Message: fmt.Sprintf("Video is too long (%ds). Maximum duration is %ds.", whole, limit),
		}
	}
	return whole, nil
}

// ContentType derives the upload content type from the validated extension, falling back to
// the reported type and then a generic binary type.
func ContentType(f File) string {
	if ct, ok := contentTypes[f.Ext()]; ok {
		return ct
	}
	if f.ReportedType != "" {
		return f.ReportedType
	}
	return "application/octet-stream"
}

func describeExtensions(exts []string) string {
	names := make([]string, 0, len(exts))
	for _, ext := range exts {
		names = append(names, strings.ToUpper(strings.TrimPrefix(ext, ".")))
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " or " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
}

func formatMB(b int64) string {
	if b%bytesPerMB == 0 {
		return fmt.Sprintf("%d", b/bytesPerMB)
	}
	return fmt.Sprintf("%.2f", float64(b)/bytesPerMB)
}
