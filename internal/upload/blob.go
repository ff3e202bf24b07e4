package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// ProgressFunc receives the number of bytes sent so far and the total.
type ProgressFunc func(sent, total int64)

// BlobWriter streams a local file to an upload slot.
type BlobWriter interface {
	Write(ctx context.Context, slot Slot, path, contentType string, progress ProgressFunc) error
}

// HTTPBlobWriter writes blobs with a single PUT, as a browser would.
type HTTPBlobWriter struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPBlobWriter returns a writer bounded by timeout.
func NewHTTPBlobWriter(timeout time.Duration) *HTTPBlobWriter {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &HTTPBlobWriter{Client: &http.Client{}, Timeout: timeout}
}

// Write PUTs the file to the slot URL. The request carries no API credentials; the slot URL
// is its own authorization.
func (w *HTTPBlobWriter) Write(ctx context.Context, slot Slot, path, contentType string, progress ProgressFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat upload source: %w", err)
	}

	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	body := &progressReader{r: f, total: info.Size(), report: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, slot.URL, body)
	if err != nil {
		return fmt.Errorf("build blob request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &BlobError{StatusCode: resp.StatusCode}
	}
	return nil
}

// BlobError reports a rejected blob write.
type BlobError struct {
	StatusCode int
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("Upload failed with status %d", e.StatusCode)
}

type progressReader struct {
	r      io.Reader
	total  int64
	report ProgressFunc

	mu   sync.Mutex
	sent int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.report != nil {
		p.mu.Lock()
		p.sent += int64(n)
		sent := p.sent
		p.mu.Unlock()
		p.report(sent, p.total)
	}
	return n, err
}
