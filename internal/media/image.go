package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MaxImageBytes bounds any image accepted from a client or a remote URL.
const MaxImageBytes = 7 * 1024 * 1024

// ErrEmptyImage is returned when image data is missing.
var ErrEmptyImage = errors.New("media: empty image")

// Image is raw image data with its MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// NewImage wraps data, sniffing the MIME type when the provided one is not an image type.
func NewImage(data []byte, mimeType string) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	if len(data) > MaxImageBytes {
		return Image{}, fmt.Errorf("media: image exceeds %d bytes", MaxImageBytes)
	}
	return Image{Data: data, MIMEType: DetectMIME(data, mimeType)}, nil
}

// Empty reports whether the image carries no data.
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// DataURI renders the image inline as a data: URI.
func (i Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Extension returns a file extension matching the MIME type.
func (i Image) Extension() string {
	switch strings.ToLower(i.MIMEType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// ParseDataURI decodes a base64 data: URI.
func ParseDataURI(uri string) (Image, error) {
	if !strings.HasPrefix(uri, "data:") {
		return Image{}, fmt.Errorf("media: not a data URI")
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return Image{}, fmt.Errorf("media: invalid data URI")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("media: decode data URI: %w", err)
	}
	return NewImage(data, strings.TrimSuffix(header, ";base64"))
}

// DetectMIME trusts the provided type when it names an image, otherwise sniffs the data.
func DetectMIME(data []byte, provided string) string {
	mime := strings.TrimSpace(provided)
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return "image/jpeg"
	}
	return mime
}
