package saved

import "plateful/internal/recipe"

// Set is an ordered collection of saved recipes keyed by ID.
// It never holds two recipes with the same ID.
type Set struct {
	items []recipe.Recipe
}

// NewSet builds a set from persisted recipes, dropping duplicates and
// records without an identity.
func NewSet(recipes []recipe.Recipe) *Set {
	s := &Set{}
	for _, r := range recipes {
		if r.Valid() {
			s.Add(r)
		}
	}
	return s
}

// Contains reports whether a recipe with id is saved.
func (s *Set) Contains(id string) bool {
	return recipe.IndexOf(s.items, id) >= 0
}

// Add saves the recipe unless its ID is already present.
func (s *Set) Add(r recipe.Recipe) bool {
	if s.Contains(r.ID) {
		return false
	}
	s.items = append(s.items, r.Clone())
	return true
}

// Remove drops the recipe with id.
func (s *Set) Remove(id string) bool {
	i := recipe.IndexOf(s.items, id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

// Toggle saves the recipe if absent and removes it otherwise. It reports
// whether the recipe is saved afterwards.
func (s *Set) Toggle(r recipe.Recipe) bool {
	if s.Remove(r.ID) {
		return false
	}
	s.Add(r)
	return true
}

// Update replaces the saved copy of r, if there is one.
func (s *Set) Update(r recipe.Recipe) bool {
	i := recipe.IndexOf(s.items, r.ID)
	if i < 0 {
		return false
	}
	s.items[i] = r.Clone()
	return true
}

// Get returns the saved recipe with id.
func (s *Set) Get(id string) (recipe.Recipe, bool) {
	i := recipe.IndexOf(s.items, id)
	if i < 0 {
		return recipe.Recipe{}, false
	}
	return s.items[i].Clone(), true
}

// List returns a copy of the saved recipes in save order.
func (s *Set) List() []recipe.Recipe {
	out := recipe.CloneAll(s.items)
	if out == nil {
		out = []recipe.Recipe{}
	}
	return out
}

// Len returns the number of saved recipes.
func (s *Set) Len() int {
	return len(s.items)
}
