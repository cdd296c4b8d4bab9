package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"plateful/internal/media"
)

// ErrNoImageProduced is returned when the backend answers without an image.
var ErrNoImageProduced = errors.New("vision: no image produced")

// ImageGenerator renders one photorealistic image for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (media.Image, error)
}

// ImageModels is the part of the genai models service used for image output.
// *genai.Models satisfies it.
type ImageModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// GeminiImageGenerator renders dishes through the Gemini API. Imagen models go
// through the images endpoint, Gemini image models through inline content parts.
type GeminiImageGenerator struct {
	models  ImageModels
	model   string
	timeout time.Duration
}

const defaultImageModel = "gemini-2.5-flash-image"

// NewGeminiImageGenerator constructs a generator able to request inline images.
func NewGeminiImageGenerator(models ImageModels, model string, timeout time.Duration) *GeminiImageGenerator {
	if strings.TrimSpace(model) == "" {
		model = defaultImageModel
	}
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiImageGenerator{
		models:  models,
		model:   model,
		timeout: timeout,
	}
}

// Generate requests a photorealistic image for the given prompt.
func (g *GeminiImageGenerator) Generate(ctx context.Context, prompt string) (media.Image, error) {
	if g == nil || g.models == nil {
		return media.Image{}, fmt.Errorf("vision: image generator unavailable")
	}
	if strings.TrimSpace(prompt) == "" {
		return media.Image{}, fmt.Errorf("vision: empty image prompt")
	}

	childCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if strings.HasPrefix(g.model, "imagen") {
		return g.generateImagen(childCtx, prompt)
	}

	resp, err := g.models.GenerateContent(childCtx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	})
	if err != nil {
		return media.Image{}, fmt.Errorf("vision: render failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return media.Image{}, ErrNoImageProduced
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		return media.NewImage(part.InlineData.Data, part.InlineData.MIMEType)
	}
	return media.Image{}, ErrNoImageProduced
}

func (g *GeminiImageGenerator) generateImagen(ctx context.Context, prompt string) (media.Image, error) {
	resp, err := g.models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "4:3",
	})
	if err != nil {
		return media.Image{}, fmt.Errorf("vision: render failed: %w", err)
	}
	for _, generated := range resp.GeneratedImages {
		if generated == nil || generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
			continue
		}
		return media.NewImage(generated.Image.ImageBytes, generated.Image.MIMEType)
	}
	return media.Image{}, ErrNoImageProduced
}
