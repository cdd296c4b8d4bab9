package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"plateful/internal/llm"
	"plateful/internal/media"
	"plateful/internal/prompts"
)

const defaultVisionModel = "gemini-2.5-flash"

// Classifier answers yes/no questions about images.
//
// Both checks fail safe: when the model cannot give a definitive answer
// (transport error, timeout, unparsable reply) the result is false. Callers
// treat false as the graceful fallback path, so the error is logged and
// never returned.
type Classifier struct {
	models  llm.ContentGenerator
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClassifier constructs a Gemini-backed image classifier.
func NewClassifier(models llm.ContentGenerator, model string, timeout time.Duration, logger *zap.Logger) *Classifier {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		model = defaultVisionModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		models:  models,
		model:   model,
		timeout: timeout,
		logger:  logger.Named("vision"),
	}
}

// IsFood reports whether the image shows food or ingredients.
func (c *Classifier) IsFood(ctx context.Context, img media.Image) bool {
	var verdict struct {
		IsFood *bool `json:"isFood"`
	}
	if err := c.ask(ctx, img, prompts.IsFood(), boolSchema("isFood"), &verdict); err != nil {
		c.logger.Warn("food classification failed, treating as not food", zap.Error(err))
		return false
	}
	if verdict.IsFood == nil {
		c.logger.Warn("food classification missing verdict, treating as not food")
		return false
	}
	return *verdict.IsFood
}

// MatchesRecipe reports whether a generated image plausibly shows the named dish.
func (c *Classifier) MatchesRecipe(ctx context.Context, name string, img media.Image) bool {
	var verdict struct {
		Matches *bool `json:"matches"`
	}
	if err := c.ask(ctx, img, prompts.MatchesRecipe(name), boolSchema("matches"), &verdict); err != nil {
		c.logger.Warn("image validation failed, treating as mismatch", zap.String("recipe", name), zap.Error(err))
		return false
	}
	if verdict.Matches == nil {
		c.logger.Warn("image validation missing verdict, treating as mismatch", zap.String("recipe", name))
		return false
	}
	return *verdict.Matches
}

func (c *Classifier) ask(ctx context.Context, img media.Image, question string, schema *genai.Schema, out any) error {
	if c == nil || c.models == nil {
		return fmt.Errorf("vision: classifier not configured")
	}
	if img.Empty() {
		return media.ErrEmptyImage
	}

	childCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromBytes(img.Data, img.MIMEType),
		genai.NewPartFromText(question),
	}
	resp, err := c.models.GenerateContent(childCtx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0),
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	)
	if err != nil {
		return fmt.Errorf("vision: classify: %w", err)
	}
	return parseVerdict(resp.Text(), out)
}

func boolSchema(field string) *genai.Schema {
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{field: {Type: genai.TypeBoolean}},
		Required:   []string{field},
	}
}

func parseVerdict(text string, out any) error {
	text = llm.StripCodeFence(text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return fmt.Errorf("vision: parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
			return fmt.Errorf("vision: parse response: %w", err)
		}
	}
	return nil
}
