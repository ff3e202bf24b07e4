package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/repositories"
)

type videoStoreStub struct {
	mu     sync.Mutex
	videos map[string]models.Video
	err    error
}

func newVideoStoreStub(videos ...models.Video) *videoStoreStub {
	s := &videoStoreStub{videos: make(map[string]models.Video)}
	for _, v := range videos {
		s.videos[v.ID] = v
	}
	return s
}

func (s *videoStoreStub) Create(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.videos[video.ID] = video
	return nil
}

func (s *videoStoreStub) FindByBlobName(_ context.Context, ownerID, blobName string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.OwnerID == ownerID && v.BlobName == blobName {
			return v, nil
		}
	}
	return models.Video{}, repositories.ErrNotFound
}

func (s *videoStoreStub) FindByID(_ context.Context, videoID string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return v, nil
}

func (s *videoStoreStub) ListForOwner(_ context.Context, ownerID string) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Video
	for _, v := range s.videos {
		if v.OwnerID == ownerID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *videoStoreStub) MarkUploaded(_ context.Context, videoID string, durationSec int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return repositories.ErrNotFound
	}
	v.Status = models.VideoStatusProcessing
	v.DurationSec = durationSec
	s.videos[videoID] = v
	return nil
}

func (s *videoStoreStub) SetThumbnail(_ context.Context, ownerID, blobName, thumbnailURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.videos {
		if v.OwnerID == ownerID && v.BlobName == blobName {
			v.ThumbnailURL = thumbnailURL
			s.videos[id] = v
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (s *videoStoreStub) byBlob(blobName string) (models.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.BlobName == blobName {
			return v, true
		}
	}
	return models.Video{}, false
}

type clipStoreStub struct {
	clips map[string][]models.Clip
	err   error
}

func (s clipStoreStub) ListForVideo(_ context.Context, videoID string) ([]models.Clip, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.clips[videoID], nil
}

type objectStoreStub struct {
	mu       sync.Mutex
	presign  []string
	expiries []time.Duration
	present  map[string]bool
	saved    map[string][]byte
	headErr  error
}

func newObjectStoreStub() *objectStoreStub {
	return &objectStoreStub{present: map[string]bool{}, saved: map[string][]byte{}}
}

func (s *objectStoreStub) PresignPut(_ context.Context, key string, expires time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presign = append(s.presign, key)
	s.expiries = append(s.expiries, expires)
	return fmt.Sprintf("https://blob.example.com/uploads/%s?sig=abc", key), nil
}

func (s *objectStoreStub) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headErr != nil {
		return false, s.headErr
	}
	return s.present[key], nil
}

func (s *objectStoreStub) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[name] = data
	return "https://cdn.example.com/" + name, nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []events.VideoUploaded
	err    error
}

func (p *publisherStub) PublishVideoUploaded(_ context.Context, event events.VideoUploaded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(logging.WithUserID(r.Context(), userID))
}

func jsonBody(s string) io.Reader {
	return bytes.NewBufferString(s)
}
