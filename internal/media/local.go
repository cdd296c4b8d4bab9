package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalUploader stores files in a directory the HTTP server exposes under BaseURL.
type LocalUploader struct {
	BaseDir string
	BaseURL string
}

// NewLocalUploader constructs an uploader that writes to the provided directory.
// If baseDir is empty, a plateful directory under os.TempDir() is used.
func NewLocalUploader(baseDir, baseURL string) (*LocalUploader, error) {
	dir := baseDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "plateful-media")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local media dir: %w", err)
	}
	return &LocalUploader{BaseDir: dir, BaseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Upload writes the incoming content to a new file and returns its public URL.
func (l *LocalUploader) Upload(_ context.Context, input UploadInput) (UploadResult, error) {
	if input.Body == nil {
		return UploadResult{}, fmt.Errorf("upload body is required")
	}

	ext := filepath.Ext(input.Filename)
	if len(ext) > 10 {
		ext = ext[:10]
	}

	file, err := os.CreateTemp(l.BaseDir, "plate-*"+ext)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create media file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, input.Body); err != nil {
		os.Remove(file.Name())
		return UploadResult{}, fmt.Errorf("write media file: %w", err)
	}

	name := filepath.Base(file.Name())
	result := UploadResult{Key: name}
	if l.BaseURL != "" {
		result.URL = l.BaseURL + "/" + name
	}
	return result, nil
}
