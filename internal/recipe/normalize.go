package recipe

import (
	"strings"

	"github.com/google/uuid"
)

// Truncate keeps at most MaxBatch raw records, preserving order.
func Truncate(raws []Raw) []Raw {
	if len(raws) > MaxBatch {
		return raws[:MaxBatch]
	}
	return raws
}

// Normalize assigns a fresh identifier to every raw record and returns
// canonical recipes with no image state.
func Normalize(raws []Raw) []Recipe {
	raws = Truncate(raws)
	recipes := make([]Recipe, 0, len(raws))
	for _, raw := range raws {
		recipes = append(recipes, Recipe{
			ID:           uuid.NewString(),
			Name:         strings.TrimSpace(raw.Name),
			Description:  strings.TrimSpace(raw.Description),
			Ingredients:  cleanLines(raw.Ingredients),
			Instructions: cleanLines(raw.Instructions),
			ImagePrompt:  strings.TrimSpace(raw.ImagePrompt),
		})
	}
	return recipes
}

func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
