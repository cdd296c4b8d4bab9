package media

import (
	"bytes"
	"context"
	"errors"

	"go.uber.org/zap"
)

// Publisher turns accepted images into something a browser can display:
// an uploaded object URL when storage is available, a data URI otherwise.
type Publisher struct {
	uploader Uploader
	logger   *zap.Logger
}

// NewPublisher wraps an uploader. A nil uploader publishes inline data URIs only.
func NewPublisher(uploader Uploader, logger *zap.Logger) *Publisher {
	if uploader == nil {
		uploader = Disabled()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{uploader: uploader, logger: logger}
}

// Publish stores the image and returns its URL, falling back to a data URI.
func (p *Publisher) Publish(ctx context.Context, name string, img Image) string {
	result, err := p.uploader.Upload(ctx, UploadInput{
		Filename:    "recipe" + img.Extension(),
		ContentType: img.MIMEType,
		Body:        bytes.NewReader(img.Data),
		Size:        int64(len(img.Data)),
	})
	if err == nil && result.URL != "" {
		return result.URL
	}
	if err != nil && !errors.Is(err, ErrUploaderDisabled) {
		p.logger.Warn("image upload failed, inlining",
			zap.String("recipe", name),
			zap.Error(err),
		)
	}
	return img.DataURI()
}
