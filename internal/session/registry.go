package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"plateful/internal/events"
	"plateful/internal/recipe"
	"plateful/internal/saved"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Gateway Gateway
	Loops   ImageLoops
	Store   saved.Store
	Events  events.Publisher
	Logger  *zap.Logger
	Clock   func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = saved.NewInMemoryStore()
	}
	if d.Events == nil {
		d.Events = events.Discard{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

type entry struct {
	orchestrator *Orchestrator
	lastSeen     time.Time
}

// Registry hands out one orchestrator per client and owns the shared gallery.
type Registry struct {
	bg      context.Context
	deps    Deps
	gallery *Gallery

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry constructs a registry. bg bounds all background work.
func NewRegistry(bg context.Context, deps Deps) *Registry {
	deps = deps.withDefaults()
	r := &Registry{
		bg:       bg,
		deps:     deps,
		sessions: make(map[string]*entry),
	}
	r.gallery = newGallery(bg, deps, r.propagateGalleryImage)
	return r
}

// Gallery returns the landing page gallery.
func (r *Registry) Gallery() *Gallery {
	return r.gallery
}

// Session returns the client's orchestrator, creating it and loading the
// client's saved recipes on first use.
func (r *Registry) Session(ctx context.Context, clientID string) (*Orchestrator, error) {
	if o := r.lookup(clientID); o != nil {
		return o, nil
	}

	savedRecipes, err := r.deps.Store.Load(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("session: load saved recipes: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[clientID]; ok {
		e.lastSeen = r.deps.Clock()
		return e.orchestrator, nil
	}
	o := newOrchestrator(r.bg, clientID, r.deps, r.gallery, savedRecipes)
	r.sessions[clientID] = &entry{orchestrator: o, lastSeen: r.deps.Clock()}
	r.deps.Logger.Debug("session created", zap.String("client_id", clientID), zap.Int("saved", len(savedRecipes)))
	return o, nil
}

func (r *Registry) lookup(clientID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[clientID]
	if !ok {
		return nil
	}
	e.lastSeen = r.deps.Clock()
	return e.orchestrator
}

// Sweep forgets sessions idle for longer than maxIdle. Their saved recipes
// stay in the store and are reloaded on the next visit.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.deps.Clock().Add(-maxIdle)
	var evicted []*Orchestrator

	r.mu.Lock()
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			evicted = append(evicted, e.orchestrator)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, o := range evicted {
		o.retire()
	}
	return len(evicted)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) propagateGalleryImage(rec recipe.Recipe) {
	r.mu.Lock()
	sessions := make([]*Orchestrator, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.orchestrator)
	}
	r.mu.Unlock()

	for _, o := range sessions {
		o.applyGalleryImage(rec)
	}
}
