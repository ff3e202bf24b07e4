package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrNoSlotURL indicates the slot response carried no write URL.
var ErrNoSlotURL = errors.New("upload slot response missing write URL")

// Slot is a time-limited write destination for one upload attempt.
type Slot struct {
	URL       string
	BlobName  string
	ExpiresAt time.Time
}

var (
	slotURLFields     = []string{"sas_url", "upload_url", "url"}
	slotNameFields    = []string{"blob_name", "filename", "file_name"}
	slotExpiresFields = []string{"expires_at", "expiresAt"}
)

// NormalizeSlot maps an upload slot payload onto Slot. When the server names no blob, the
// final path segment of the write URL is used.
func NormalizeSlot(body []byte) (Slot, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Slot{}, fmt.Errorf("decode upload slot: %w", err)
	}

	slot := Slot{
		URL:      firstString(raw, slotURLFields),
		BlobName: firstString(raw, slotNameFields),
	}
	if slot.URL == "" {
		return Slot{}, ErrNoSlotURL
	}
	if slot.BlobName == "" {
		if u, err := url.Parse(slot.URL); err == nil {
			if name := path.Base(u.Path); name != "/" && name != "." {
				slot.BlobName = name
			}
		}
	}
	if expires := firstString(raw, slotExpiresFields); expires != "" {
		if ts, err := time.Parse(time.RFC3339, expires); err == nil {
			slot.ExpiresAt = ts
		}
	}
	return slot, nil
}

func firstString(raw map[string]any, keys []string) string {
	for _, key := range keys {
		if value, ok := raw[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// RequestSlot asks the API for a write URL for a file with the given extension.
func (s *Service) RequestSlot(ctx context.Context, ext string) (Slot, error) {
	hours := int(math.Ceil(s.SlotExpiry.Hours()))
	if hours < 1 {
		hours = 2
	}
	query := url.Values{
		"file_extension": {strings.TrimPrefix(strings.ToLower(ext), ".")},
		"expiry_hours":   {strconv.Itoa(hours)},
	}

	var raw json.RawMessage
	if err := s.API.DoJSON(ctx, http.MethodGet, "/video-upload/generate-upload-url", query, nil, &raw); err != nil {
		return Slot{}, fmt.Errorf("request upload slot: %w", err)
	}
	return NormalizeSlot(raw)
}
