package session

import (
	"context"

	"plateful/internal/imaging"
	"plateful/internal/llm"
	"plateful/internal/media"
	"plateful/internal/recipe"
	"plateful/internal/vision"
)

// Gateway is the AI surface a discovery round needs.
type Gateway interface {
	IsFood(ctx context.Context, img media.Image) bool
	FetchFromImage(ctx context.Context, img media.Image, exclude, cuisines []string) ([]recipe.Raw, error)
	FetchGeneric(ctx context.Context, exclude []string) ([]recipe.Raw, error)
	FetchPopular(ctx context.Context) ([]recipe.Raw, error)
}

// ImageLoops starts background image acquisition for a batch of recipes.
type ImageLoops interface {
	Dispatch(ctx context.Context, recipes []recipe.Recipe, settle func(imaging.Outcome)) (wait func())
}

type aiGateway struct {
	*llm.RecipeClient
	*vision.Classifier
}

// NewGateway combines the recipe text client and the image classifier.
func NewGateway(recipes *llm.RecipeClient, classifier *vision.Classifier) Gateway {
	return aiGateway{RecipeClient: recipes, Classifier: classifier}
}
