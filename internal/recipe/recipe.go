package recipe

import "strings"

// MaxBatch is the number of recipes a single fetch may yield.
const MaxBatch = 3

// Raw is a recipe record as returned by the text model, before it gets an identity.
type Raw struct {
	Name         string   `json:"recipeName"`
	Description  string   `json:"description"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	ImagePrompt  string   `json:"imagePrompt"`
}

// Recipe is a dish suggestion with a stable identifier for the session.
//
// Image and ImageFailed are never both set. While neither is set the image
// is still being acquired.
type Recipe struct {
	ID           string   `json:"id"`
	Name         string   `json:"recipeName"`
	Description  string   `json:"description"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	ImagePrompt  string   `json:"imagePrompt"`
	Image        string   `json:"imageUrl,omitempty"`
	ImageFailed  bool     `json:"imageGenerationFailed,omitempty"`
}

// ImagePending reports whether the recipe is still waiting on its image.
func (r Recipe) ImagePending() bool {
	return r.Image == "" && !r.ImageFailed
}

// WithImage returns a copy carrying the resolved image.
func (r Recipe) WithImage(uri string) Recipe {
	r.Image = uri
	r.ImageFailed = false
	return r
}

// WithImageFailed returns a copy marked as having no obtainable image.
func (r Recipe) WithImageFailed() Recipe {
	r.Image = ""
	r.ImageFailed = true
	return r
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (r Recipe) Clone() Recipe {
	r.Ingredients = append([]string(nil), r.Ingredients...)
	r.Instructions = append([]string(nil), r.Instructions...)
	return r
}

// Valid reports whether the recipe carries the minimum identity to be displayed.
func (r Recipe) Valid() bool {
	return strings.TrimSpace(r.ID) != "" && strings.TrimSpace(r.Name) != ""
}

// CloneAll deep-copies a slice of recipes.
func CloneAll(recipes []Recipe) []Recipe {
	if recipes == nil {
		return nil
	}
	out := make([]Recipe, len(recipes))
	for i, r := range recipes {
		out[i] = r.Clone()
	}
	return out
}

// Names lists recipe names in display order.
func Names(recipes []Recipe) []string {
	names := make([]string, 0, len(recipes))
	for _, r := range recipes {
		if name := strings.TrimSpace(r.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// IndexOf returns the position of the recipe with the given id, or -1.
func IndexOf(recipes []Recipe, id string) int {
	for i, r := range recipes {
		if r.ID == id {
			return i
		}
	}
	return -1
}
