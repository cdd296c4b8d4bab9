package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"plateful/internal/events"
	"plateful/internal/imaging"
	"plateful/internal/media"
	"plateful/internal/recipe"
	"plateful/internal/saved"
)

var (
	// ErrNoImage is returned when a discovery is requested without a photo.
	ErrNoImage = errors.New("session: an image is required")
	// ErrUnknownRecipe is returned for IDs that are neither displayed, in the gallery, nor saved.
	ErrUnknownRecipe = errors.New("session: unknown recipe")
	// ErrSuperseded is returned when a newer request or a reset replaced this one.
	ErrSuperseded = errors.New("session: request superseded")
	// ErrInvalidTimer is returned for durations outside (0, recipe.MaxTimerSeconds].
	ErrInvalidTimer = errors.New("session: timer duration out of range")
)

const (
	msgNoImage     = "Please add a photo of your ingredients first."
	msgNotFood     = "That doesn't look like food, so here are some popular ideas instead."
	msgFetchFailed = "We couldn't come up with recipes right now. Please try again."
	msgSaveFailed  = "Your saved recipes could not be stored."
)

// Request starts a discovery round.
type Request struct {
	Image    media.Image
	Cuisines []string
	// Exclude lists recipe names to avoid. A non-empty list skips classification.
	Exclude []string
}

// Orchestrator drives recipe discovery for one client.
type Orchestrator struct {
	clientID string
	gateway  Gateway
	loops    ImageLoops
	store    saved.Store
	events   events.Publisher
	gallery  *Gallery
	logger   *zap.Logger
	now      func() time.Time

	// bg outlives requests; image loops and timers run on it.
	bg context.Context

	mu         sync.Mutex
	state      *State
	timerAlarm *time.Timer
	inflight   sync.WaitGroup
	// retired is set once the registry evicts the session.
	retired bool

	// persistMu orders writes so the store always ends with the latest set.
	persistMu sync.Mutex
}

func newOrchestrator(bg context.Context, clientID string, deps Deps, gallery *Gallery, savedRecipes []recipe.Recipe) *Orchestrator {
	return &Orchestrator{
		clientID: clientID,
		gateway:  deps.Gateway,
		loops:    deps.Loops,
		store:    deps.Store,
		events:   deps.Events,
		gallery:  gallery,
		logger:   deps.Logger.With(zap.String("client_id", clientID)),
		now:      deps.Clock,
		bg:       bg,
		state:    NewState(savedRecipes),
	}
}

// ClientID returns the client this session belongs to.
func (o *Orchestrator) ClientID() string {
	return o.clientID
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.snapshot()
}

// Discover runs a discovery round for a photo.
func (o *Orchestrator) Discover(ctx context.Context, req Request) (Snapshot, error) {
	if req.Image.Empty() {
		o.rejectNoImage()
		return o.Snapshot(), ErrNoImage
	}

	img, err := media.Downscale(req.Image, media.MaxUploadSide)
	if err != nil {
		o.logger.Warn("downscale failed, sending original", zap.Error(err))
		img = req.Image
	}

	cuisines := cleanList(req.Cuisines)
	exclude := cleanList(req.Exclude)

	o.mu.Lock()
	seq := o.state.beginDiscover(img, cuisines)
	o.mu.Unlock()

	round := RoundImage
	if len(exclude) == 0 && !o.gateway.IsFood(ctx, img) {
		round = RoundFallback
		o.advise(AdvisoryNotFood, msgNotFood)
	}
	return o.fetch(ctx, seq, round, img, exclude, cuisines)
}

// LoadMore asks for different recipes than the ones displayed, repeating the
// previous round's kind.
func (o *Orchestrator) LoadMore(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	img := o.state.image
	if img.Empty() {
		o.mu.Unlock()
		o.rejectNoImage()
		return o.Snapshot(), ErrNoImage
	}
	round := o.state.round
	if round != RoundFallback {
		round = RoundImage
	}
	cuisines := append([]string(nil), o.state.cuisines...)
	exclude := recipe.Names(o.state.recipes)
	seq := o.state.beginDiscover(img, cuisines)
	o.mu.Unlock()

	return o.fetch(ctx, seq, round, img, exclude, cuisines)
}

func (o *Orchestrator) fetch(ctx context.Context, seq uint64, round Round, img media.Image, exclude, cuisines []string) (Snapshot, error) {
	var (
		raws []recipe.Raw
		err  error
	)
	if round == RoundFallback {
		raws, err = o.gateway.FetchGeneric(ctx, exclude)
	} else {
		raws, err = o.gateway.FetchFromImage(ctx, img, exclude, cuisines)
	}
	if err != nil {
		o.logger.Error("recipe fetch failed", zap.String("round", string(round)), zap.Error(err))
		o.mu.Lock()
		current := o.state.failDiscover(seq, msgFetchFailed)
		o.mu.Unlock()
		if current {
			o.advise(AdvisoryFetchFailed, msgFetchFailed)
		}
		return o.Snapshot(), fmt.Errorf("session: fetch recipes: %w", err)
	}

	recipes := recipe.Normalize(raws)

	o.mu.Lock()
	token, ok := o.state.completeDiscover(seq, recipes, round)
	o.mu.Unlock()
	if !ok {
		o.logger.Info("discarding superseded recipes", zap.Int("count", len(recipes)))
		return o.Snapshot(), ErrSuperseded
	}

	o.logger.Info("recipes ready",
		zap.String("round", string(round)),
		zap.Int("count", len(recipes)),
		zap.Int("excluded", len(exclude)),
	)
	o.publish(events.Event{Kind: events.KindRecipes})
	o.dispatch(token, recipes)
	return o.Snapshot(), nil
}

func (o *Orchestrator) dispatch(token uint64, recipes []recipe.Recipe) {
	if len(recipes) == 0 {
		return
	}
	o.inflight.Add(1)
	wait := o.loops.Dispatch(o.bg, recipes, func(out imaging.Outcome) {
		o.settle(token, out)
	})
	go func() {
		defer o.inflight.Done()
		wait()
	}()
}

func (o *Orchestrator) settle(token uint64, out imaging.Outcome) {
	o.mu.Lock()
	updated, displayed, savedChanged := o.state.applyImage(token, out)
	o.mu.Unlock()

	if !displayed && !savedChanged {
		o.logger.Debug("dropping stale image result", zap.String("recipe_id", out.RecipeID))
		return
	}
	if savedChanged {
		o.persist()
	}
	if displayed && out.Failed {
		o.advise(AdvisoryImageFailed, fmt.Sprintf("We couldn't create a picture for %s.", updated.Name))
	}
	o.publish(events.Event{Kind: events.KindImage, RecipeID: out.RecipeID, Recipe: &updated})
}

// Reset clears the displayed recipes and photo. Image loops still running
// for the old recipes will no longer touch the display.
func (o *Orchestrator) Reset() Snapshot {
	o.mu.Lock()
	o.state.reset()
	snap := o.state.snapshot()
	o.mu.Unlock()
	o.publish(events.Event{Kind: events.KindRecipes})
	return snap
}

// ShowShared displays a recipe decoded from a share link as the only recipe.
// A recipe without an image gets one acquired in the background.
func (o *Orchestrator) ShowShared(r recipe.Recipe) Snapshot {
	if r.ImageFailed {
		r.ImageFailed = false
	}
	o.mu.Lock()
	token := o.state.showShared(r)
	o.mu.Unlock()

	o.publish(events.Event{Kind: events.KindRecipes})
	if r.ImagePending() {
		o.dispatch(token, []recipe.Recipe{r})
	}
	return o.Snapshot()
}

// Recipe finds a recipe by ID among displayed, gallery and saved recipes.
func (o *Orchestrator) Recipe(id string) (recipe.Recipe, bool) {
	o.mu.Lock()
	r, ok := o.state.find(id)
	o.mu.Unlock()
	if ok {
		return r, true
	}
	if o.gallery != nil {
		return o.gallery.Get(id)
	}
	return recipe.Recipe{}, false
}

// Saved lists the saved recipes.
func (o *Orchestrator) Saved() []recipe.Recipe {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.saved.List()
}

// ToggleSaved saves or unsaves the recipe with id and reports whether it is saved now.
func (o *Orchestrator) ToggleSaved(ctx context.Context, id string) (bool, error) {
	r, ok := o.Recipe(id)
	if !ok {
		return false, ErrUnknownRecipe
	}
	o.mu.Lock()
	now := o.state.toggleSaved(r)
	o.mu.Unlock()

	err := o.persistCtx(ctx)
	o.publish(events.Event{Kind: events.KindSaved, RecipeID: id})
	return now, err
}

// SaveRecipe saves an arbitrary recipe, such as one opened from a link.
func (o *Orchestrator) SaveRecipe(ctx context.Context, r recipe.Recipe) error {
	if !r.Valid() {
		return ErrUnknownRecipe
	}
	o.mu.Lock()
	added := o.state.addSaved(r)
	o.mu.Unlock()
	if !added {
		return nil
	}
	err := o.persistCtx(ctx)
	o.publish(events.Event{Kind: events.KindSaved, RecipeID: r.ID})
	return err
}

// RemoveSaved unsaves the recipe with id.
func (o *Orchestrator) RemoveSaved(ctx context.Context, id string) error {
	o.mu.Lock()
	removed := o.state.removeSaved(id)
	o.mu.Unlock()
	if !removed {
		return ErrUnknownRecipe
	}
	err := o.persistCtx(ctx)
	o.publish(events.Event{Kind: events.KindSaved, RecipeID: id})
	return err
}

// applyGalleryImage lets a gallery loop fill in the image of a saved gallery recipe.
func (o *Orchestrator) applyGalleryImage(r recipe.Recipe) {
	o.mu.Lock()
	changed := o.state.updateSaved(r)
	o.mu.Unlock()
	if changed {
		o.persist()
		o.publish(events.Event{Kind: events.KindSaved, RecipeID: r.ID})
	}
}

// StartTimer starts the session's timer, replacing any running one.
func (o *Orchestrator) StartTimer(seconds int, description string) (Timer, error) {
	if seconds <= 0 || seconds > recipe.MaxTimerSeconds {
		return Timer{}, ErrInvalidTimer
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.timerAlarm != nil {
		o.timerAlarm.Stop()
	}
	timer := o.state.startTimer(seconds, strings.TrimSpace(description), o.now())
	id := timer.ID
	o.timerAlarm = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		o.finishTimer(id)
	})
	return timer, nil
}

func (o *Orchestrator) finishTimer(id uint64) {
	o.mu.Lock()
	timer, ok := o.state.finishTimer(id)
	o.mu.Unlock()
	if ok {
		o.publish(events.Event{Kind: events.KindTimer, Message: timer.Description})
	}
}

// CloseTimer dismisses the timer.
func (o *Orchestrator) CloseTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timerAlarm != nil {
		o.timerAlarm.Stop()
		o.timerAlarm = nil
	}
	o.state.closeTimer()
}

// Timer returns the current timer, if any.
func (o *Orchestrator) Timer() (Timer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.timer == nil {
		return Timer{}, false
	}
	return *o.state.timer, true
}

// Advise records a user-visible advisory raised outside the orchestrator,
// such as an unreadable share link.
func (o *Orchestrator) Advise(kind, message string) {
	o.advise(kind, message)
}

// WaitForImages blocks until every dispatched image loop has settled.
func (o *Orchestrator) WaitForImages() {
	o.inflight.Wait()
}

func (o *Orchestrator) rejectNoImage() {
	o.mu.Lock()
	o.state.rejectInput(msgNoImage)
	o.mu.Unlock()
	o.advise(AdvisoryNoImage, msgNoImage)
}

func (o *Orchestrator) advise(kind, message string) {
	o.mu.Lock()
	a := o.state.advise(kind, message, o.now())
	o.mu.Unlock()
	o.publish(events.Event{Kind: events.KindAdvisory, Message: a.Message, At: a.At})
}

// persist writes the saved set from background work. A retired session no
// longer owns the client's stored list, so it skips the write.
func (o *Orchestrator) persist() {
	o.mu.Lock()
	retired := o.retired
	o.mu.Unlock()
	if retired {
		return
	}
	_ = o.persistCtx(o.bg)
}

// retire detaches an evicted session: the timer stops and late image
// results stop reaching the store.
func (o *Orchestrator) retire() {
	o.mu.Lock()
	o.retired = true
	o.mu.Unlock()
	o.CloseTimer()
}

// persistCtx writes the current saved set. Every mutation calls it.
func (o *Orchestrator) persistCtx(ctx context.Context) error {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	list := o.state.saved.List()
	o.mu.Unlock()

	if err := o.store.Save(ctx, o.clientID, list); err != nil {
		o.logger.Error("persist saved recipes", zap.Error(err))
		o.advise(AdvisorySaveFailed, msgSaveFailed)
		return fmt.Errorf("session: persist saved recipes: %w", err)
	}
	return nil
}

func (o *Orchestrator) publish(evt events.Event) {
	evt.ClientID = o.clientID
	o.events.Publish(evt)
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
