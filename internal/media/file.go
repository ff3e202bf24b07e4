package media

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// File describes a user-selected video before any processing.
type File struct {
	Name         string
	Path         string
	Size         int64
	ReportedType string
}

// Ext returns the lower-cased final extension segment of the file name, without the dot.
func (f File) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name), "."))
}

// Stat builds a File for path, sniffing the reported type from its leading bytes.
func Stat(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}

	reported := ""
	if n > 0 {
		reported = http.DetectContentType(head[:n])
		if reported == "application/octet-stream" {
			reported = ""
		}
	}

	return File{
		Name:         filepath.Base(path),
		Path:         path,
		Size:         info.Size(),
		ReportedType: reported,
	}, nil
}
