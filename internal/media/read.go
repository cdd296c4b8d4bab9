package media

import (
	"fmt"
	"io"
)

// ReadImage reads at most MaxImageBytes from r and wraps the result.
func ReadImage(r io.Reader, mimeType string) (Image, error) {
	data, err := readLimited(r, MaxImageBytes)
	if err != nil {
		return Image{}, err
	}
	return NewImage(data, mimeType)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("media: read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("media: image exceeds %d bytes", limit)
	}
	return data, nil
}
