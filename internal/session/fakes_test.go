package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plateful/internal/events"
	"plateful/internal/imaging"
	"plateful/internal/llm"
	"plateful/internal/media"
	"plateful/internal/recipe"
	"plateful/internal/saved"
)

var photo = media.Image{Data: []byte("not really a jpeg"), MIMEType: "image/jpeg"}

// fakeGateway hands out numbered dishes and honors exclusion lists.
type fakeGateway struct {
	mu sync.Mutex

	food        bool
	err         error
	popularErr  error
	counter     int
	isFoodCalls int
	imageCalls  int
	generic     int
	popular     int
	excludes    [][]string
	cuisines    [][]string
	models      []string
}

func (g *fakeGateway) IsFood(context.Context, media.Image) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.isFoodCalls++
	return g.food
}

func (g *fakeGateway) FetchFromImage(ctx context.Context, _ media.Image, exclude, cuisines []string) ([]recipe.Raw, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.imageCalls++
	g.models = append(g.models, llm.ModelFromContext(ctx))
	g.excludes = append(g.excludes, exclude)
	g.cuisines = append(g.cuisines, cuisines)
	if g.err != nil {
		return nil, g.err
	}
	return g.batch("Pantry dish", exclude, 4), nil
}

func (g *fakeGateway) FetchGeneric(_ context.Context, exclude []string) ([]recipe.Raw, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generic++
	g.excludes = append(g.excludes, exclude)
	if g.err != nil {
		return nil, g.err
	}
	return g.batch("Classic", exclude, 3), nil
}

func (g *fakeGateway) FetchPopular(context.Context) ([]recipe.Raw, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.popular++
	if g.popularErr != nil {
		return nil, g.popularErr
	}
	return g.batch("Favourite", nil, 3), nil
}

func (g *fakeGateway) batch(prefix string, exclude []string, n int) []recipe.Raw {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	out := make([]recipe.Raw, 0, n)
	for len(out) < n {
		g.counter++
		name := fmt.Sprintf("%s %d", prefix, g.counter)
		if skip[name] {
			continue
		}
		out = append(out, recipe.Raw{
			Name:         name,
			Description:  "A quick dish.",
			Ingredients:  []string{"salt", "pepper"},
			Instructions: []string{"Chop everything.", "Bake for 20 minutes."},
			ImagePrompt:  "a plated " + name,
		})
	}
	return out
}

func (g *fakeGateway) setErr(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

type batch struct {
	recipes []recipe.Recipe
	settle  func(imaging.Outcome)
}

func (b batch) accept(uri string) {
	for _, r := range b.recipes {
		b.settle(outcomeFor(r.ID, uri))
	}
}

func (b batch) reject() {
	for _, r := range b.recipes {
		b.settle(imaging.Outcome{RecipeID: r.ID, Failed: true, Attempts: imaging.MaxAttempts, State: imaging.Rejected})
	}
}

func outcomeFor(id, uri string) imaging.Outcome {
	return imaging.Outcome{RecipeID: id, Image: uri, Attempts: 1, State: imaging.Accepted}
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

// manualLoops records dispatches; tests settle them explicitly.
type manualLoops struct {
	mu      sync.Mutex
	batches []batch
}

func (m *manualLoops) Dispatch(_ context.Context, recipes []recipe.Recipe, settle func(imaging.Outcome)) func() {
	m.mu.Lock()
	m.batches = append(m.batches, batch{recipes: recipe.CloneAll(recipes), settle: settle})
	m.mu.Unlock()
	return func() {}
}

func (m *manualLoops) batch(t *testing.T, i int) batch {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Greater(t, len(m.batches), i, "batch %d was never dispatched", i)
	return m.batches[i]
}

func (m *manualLoops) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Kind)
	}
	return out
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) ([]recipe.Recipe, error) { return nil, nil }

func (failingStore) Save(context.Context, string, []recipe.Recipe) error {
	return errors.New("disk full")
}

func (failingStore) Close() {}

type fixture struct {
	gateway  *fakeGateway
	loops    *manualLoops
	store    saved.Store
	events   *recorder
	registry *Registry
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gateway: &fakeGateway{food: true},
		loops:   &manualLoops{},
		store:   saved.NewInMemoryStore(),
		events:  &recorder{},
		now:     time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC),
	}
	f.build()
	return f
}

func (f *fixture) build() {
	f.registry = NewRegistry(context.Background(), Deps{
		Gateway: f.gateway,
		Loops:   f.loops,
		Store:   f.store,
		Events:  f.events,
		Logger:  zap.NewNop(),
		Clock:   func() time.Time { return f.now },
	})
}

func (f *fixture) session(t *testing.T, clientID string) *Orchestrator {
	t.Helper()
	o, err := f.registry.Session(context.Background(), clientID)
	require.NoError(t, err)
	return o
}
