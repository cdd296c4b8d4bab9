package prompts

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a creative chef who writes clear, home-cook friendly recipes. Every recipe must be realistic, use common kitchen equipment, and list ingredients with quantities. Instructions are short imperative steps and mention cooking times in minutes or hours where they matter."

const imageRecipesTemplate = `Look at the ingredients in this photo and suggest exactly three distinct, creative recipes that use them.
For each recipe provide recipeName, a one or two sentence description, ingredients, instructions and an imagePrompt describing a photorealistic, appetising photo of the finished dish.%s%s`

const genericRecipesTemplate = `Suggest exactly three distinct, creative recipes that a home cook can make tonight with common pantry ingredients.
For each recipe provide recipeName, a one or two sentence description, ingredients, instructions and an imagePrompt describing a photorealistic, appetising photo of the finished dish.%s`

const popularRecipesPrompt = `Suggest exactly three popular, crowd-pleasing recipes from different cuisines that are trending right now.
For each recipe provide recipeName, a one or two sentence description, ingredients, instructions and an imagePrompt describing a photorealistic, appetising photo of the finished dish.`

const isFoodPrompt = `Does this image show food or cooking ingredients? Answer with JSON {"isFood": true} or {"isFood": false}.`

const matchTemplate = `Does this image plausibly show the dish "%s"? Judge only whether a diner would recognise it as that dish. Answer with JSON {"matches": true} or {"matches": false}.`

const refinedImageTemplate = `A photorealistic, professional food photograph of %s. %s Plated on a simple dish, natural light, shallow depth of field, no text, no people.`

// SystemPrompt returns the instruction shared by every recipe request.
func SystemPrompt() string {
	return systemPrompt
}

// RecipesFromImage asks for three recipes built from the photographed ingredients.
func RecipesFromImage(exclude, cuisines []string) string {
	return fmt.Sprintf(imageRecipesTemplate, cuisineClause(cuisines), excludeClause(exclude))
}

// GenericRecipes asks for three recipes without an image.
func GenericRecipes(exclude []string) string {
	return fmt.Sprintf(genericRecipesTemplate, excludeClause(exclude))
}

// PopularRecipes seeds the landing page gallery.
func PopularRecipes() string {
	return popularRecipesPrompt
}

// IsFood asks whether a photo depicts food.
func IsFood() string {
	return isFoodPrompt
}

// MatchesRecipe asks whether a generated image shows the named dish.
func MatchesRecipe(name string) string {
	return fmt.Sprintf(matchTemplate, strings.TrimSpace(name))
}

// ImagePrompt returns the model-provided prompt, or a literal one when it is missing.
func ImagePrompt(prompt, name, description string) string {
	if p := strings.TrimSpace(prompt); p != "" {
		return p
	}
	return RefinedImagePrompt(name, description)
}

// RefinedImagePrompt anchors an image request on the dish name and description.
func RefinedImagePrompt(name, description string) string {
	desc := strings.TrimSpace(description)
	if desc != "" && !strings.HasSuffix(desc, ".") {
		desc += "."
	}
	return strings.Join(strings.Fields(fmt.Sprintf(refinedImageTemplate, strings.TrimSpace(name), desc)), " ")
}

func cuisineClause(cuisines []string) string {
	cleaned := clean(cuisines)
	if len(cleaned) == 0 {
		return ""
	}
	return "\nThe recipes should fit these cuisines: " + strings.Join(cleaned, ", ") + "."
}

func excludeClause(exclude []string) string {
	cleaned := clean(exclude)
	if len(cleaned) == 0 {
		return ""
	}
	return "\nDo not suggest any of these recipes again: " + strings.Join(cleaned, ", ") + "."
}

func clean(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
