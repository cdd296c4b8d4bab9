package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"plateful/internal/events"
	"plateful/internal/imaging"
	"plateful/internal/recipe"
)

// Gallery holds the popular recipes shown on the landing page. It is shared
// by every session and loaded once.
type Gallery struct {
	gateway Gateway
	loops   ImageLoops
	events  events.Publisher
	logger  *zap.Logger
	bg      context.Context
	onImage func(recipe.Recipe)

	mu       sync.RWMutex
	recipes  []recipe.Recipe
	loaded   bool
	loading  bool
	err      error
	inflight sync.WaitGroup
}

func newGallery(bg context.Context, deps Deps, onImage func(recipe.Recipe)) *Gallery {
	return &Gallery{
		gateway: deps.Gateway,
		loops:   deps.Loops,
		events:  deps.Events,
		logger:  deps.Logger.Named("gallery"),
		bg:      bg,
		onImage: onImage,
	}
}

// Load fetches the popular recipes and starts their image loops. Once a load
// has succeeded further calls do nothing; a failed load may be retried.
func (g *Gallery) Load(ctx context.Context) error {
	g.mu.Lock()
	if g.loaded || g.loading {
		g.mu.Unlock()
		return nil
	}
	g.loading = true
	g.mu.Unlock()

	raws, err := g.gateway.FetchPopular(ctx)

	g.mu.Lock()
	g.loading = false
	if err != nil {
		g.err = err
		g.mu.Unlock()
		g.logger.Error("popular recipes unavailable", zap.Error(err))
		return fmt.Errorf("session: load gallery: %w", err)
	}
	recipes := recipe.Normalize(raws)
	g.recipes = recipe.CloneAll(recipes)
	g.loaded = true
	g.err = nil
	g.mu.Unlock()

	g.logger.Info("popular recipes ready", zap.Int("count", len(recipes)))
	g.events.Publish(events.Event{Kind: events.KindPopular})

	g.inflight.Add(1)
	wait := g.loops.Dispatch(g.bg, recipes, g.settle)
	go func() {
		defer g.inflight.Done()
		wait()
	}()
	return nil
}

func (g *Gallery) settle(out imaging.Outcome) {
	g.mu.Lock()
	i := recipe.IndexOf(g.recipes, out.RecipeID)
	if i < 0 {
		g.mu.Unlock()
		return
	}
	g.recipes[i] = out.Apply(g.recipes[i])
	updated := g.recipes[i].Clone()
	g.mu.Unlock()

	if out.Failed {
		g.events.Publish(events.Event{
			Kind:     events.KindAdvisory,
			RecipeID: updated.ID,
			Message:  fmt.Sprintf("We couldn't create a picture for %s.", updated.Name),
		})
	}
	g.events.Publish(events.Event{Kind: events.KindImage, RecipeID: updated.ID, Recipe: &updated})
	if g.onImage != nil {
		g.onImage(updated)
	}
}

// Recipes returns the gallery in display order.
func (g *Gallery) Recipes() []recipe.Recipe {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := recipe.CloneAll(g.recipes)
	if out == nil {
		out = []recipe.Recipe{}
	}
	return out
}

// Get returns the gallery recipe with id.
func (g *Gallery) Get(id string) (recipe.Recipe, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i := recipe.IndexOf(g.recipes, id); i >= 0 {
		return g.recipes[i].Clone(), true
	}
	return recipe.Recipe{}, false
}

// Status reports whether the gallery is loaded and the last load error.
func (g *Gallery) Status() (loaded bool, err error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loaded, g.err
}

// WaitForImages blocks until the gallery's image loops have settled.
func (g *Gallery) WaitForImages() {
	g.inflight.Wait()
}
