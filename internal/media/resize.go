package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	// Registers the GIF decoder for image.Decode.
	_ "image/gif"

	"github.com/nfnt/resize"
)

// MaxUploadSide is the longest edge, in pixels, of an image sent to the AI backend.
const MaxUploadSide = 1024

// Downscale shrinks the image so its longest side is at most maxSide pixels.
// Images that are already small enough, or in formats the decoder does not
// know, are returned unchanged.
func Downscale(img Image, maxSide uint) (Image, error) {
	if img.Empty() {
		return img, ErrEmptyImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return img, nil
	}
	if uint(cfg.Width) <= maxSide && uint(cfg.Height) <= maxSide {
		return img, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return img, fmt.Errorf("media: decode %s: %w", format, err)
	}

	var width, height uint
	if cfg.Width >= cfg.Height {
		width = maxSide
	} else {
		height = maxSide
	}
	scaled := resize.Resize(width, height, decoded, resize.Lanczos3)

	var buf bytes.Buffer
	mime := "image/jpeg"
	if format == "png" {
		mime = "image/png"
		err = png.Encode(&buf, scaled)
	} else {
		err = jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return img, fmt.Errorf("media: encode %s: %w", format, err)
	}
	return Image{Data: buf.Bytes(), MIMEType: mime}, nil
}
