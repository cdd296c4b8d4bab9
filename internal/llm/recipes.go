package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"plateful/internal/media"
	"plateful/internal/prompts"
	"plateful/internal/recipe"
)

var (
	// ErrMalformedOutput indicates the model did not return a JSON list of recipes.
	ErrMalformedOutput = errors.New("llm: malformed recipe output")
	// ErrNoRecipes indicates the model returned an empty list.
	ErrNoRecipes = errors.New("llm: no recipes returned")
)

const defaultTextModel = "gemini-2.5-flash"

// RecipeClient fetches recipe suggestions from a Gemini text model.
type RecipeClient struct {
	models  ContentGenerator
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecipeClient constructs a recipe client over a genai models service.
func NewRecipeClient(models ContentGenerator, model string, timeout time.Duration, logger *zap.Logger) *RecipeClient {
	if model = normalizeModel(model); model == "" {
		model = defaultTextModel
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecipeClient{
		models:  models,
		model:   model,
		timeout: timeout,
		logger:  logger.Named("recipes"),
	}
}

// FetchFromImage asks for three recipes using the photographed ingredients.
func (c *RecipeClient) FetchFromImage(ctx context.Context, img media.Image, exclude, cuisines []string) ([]recipe.Raw, error) {
	if img.Empty() {
		return nil, media.ErrEmptyImage
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(img.Data, img.MIMEType),
		genai.NewPartFromText(prompts.RecipesFromImage(exclude, cuisines)),
	}
	return c.fetch(ctx, "image", parts)
}

// FetchGeneric asks for three pantry recipes, used when the photo is not food.
func (c *RecipeClient) FetchGeneric(ctx context.Context, exclude []string) ([]recipe.Raw, error) {
	return c.fetch(ctx, "generic", []*genai.Part{genai.NewPartFromText(prompts.GenericRecipes(exclude))})
}

// FetchPopular asks for three trending recipes for the landing page.
func (c *RecipeClient) FetchPopular(ctx context.Context) ([]recipe.Raw, error) {
	return c.fetch(ctx, "popular", []*genai.Part{genai.NewPartFromText(prompts.PopularRecipes())})
}

func (c *RecipeClient) fetch(ctx context.Context, kind string, parts []*genai.Part) ([]recipe.Raw, error) {
	if c == nil || c.models == nil {
		return nil, fmt.Errorf("llm: recipe client not configured")
	}

	model := c.model
	if override := ModelFromContext(ctx); override != "" {
		model = override
	}

	childCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.models.GenerateContent(childCtx, model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		recipeConfig(),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: generate %s recipes: %w", kind, err)
	}

	raws, err := ParseRecipes(resp.Text())
	if err != nil {
		c.logger.Warn("recipe output rejected", zap.String("kind", kind), zap.String("model", model), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("recipes fetched",
		zap.String("kind", kind),
		zap.String("model", model),
		zap.Int("count", len(raws)),
		zap.Duration("latency", time.Since(start)),
	)
	return raws, nil
}

func recipeConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompts.SystemPrompt(), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.9),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    recipeListSchema,
	}
}

var recipeListSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"recipeName":   {Type: genai.TypeString},
			"description":  {Type: genai.TypeString},
			"ingredients":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"instructions": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"imagePrompt":  {Type: genai.TypeString},
		},
		Required:         []string{"recipeName", "description", "ingredients", "instructions", "imagePrompt"},
		PropertyOrdering: []string{"recipeName", "description", "ingredients", "instructions", "imagePrompt"},
	},
}

// ParseRecipes decodes a JSON list of recipes, keeping at most recipe.MaxBatch.
func ParseRecipes(text string) ([]recipe.Raw, error) {
	text = StripCodeFence(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}

	var raws []recipe.Raw
	if err := json.Unmarshal([]byte(text), &raws); err != nil {
		start := strings.Index(text, "[")
		end := strings.LastIndex(text, "]")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &raws); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
	}

	named := raws[:0]
	for _, raw := range raws {
		if strings.TrimSpace(raw.Name) != "" {
			named = append(named, raw)
		}
	}
	if len(named) == 0 {
		return nil, ErrNoRecipes
	}
	return recipe.Truncate(named), nil
}
