package media

import "errors"

var (
	// ErrMetadataUnreadable indicates the decoder could not report a duration.
	ErrMetadataUnreadable = errors.New("could not read video metadata")
	// ErrThumbnail indicates frame capture or encoding failed. It never blocks an upload.
	ErrThumbnail = errors.New("thumbnail generation failed")
)

// ValidationKind classifies a rejected upload candidate.
type ValidationKind string

const (
	KindType     ValidationKind = "type"
	KindSize     ValidationKind = "size"
	KindDuration ValidationKind = "duration"
	KindMetadata ValidationKind = "metadata"
)

// ValidationError carries the user-facing reason a file was rejected.
type ValidationError struct {
	Kind    ValidationKind
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
