package session

import (
	"time"

	"plateful/internal/imaging"
	"plateful/internal/media"
	"plateful/internal/recipe"
	"plateful/internal/saved"
)

// Round records where the displayed recipes came from.
type Round string

const (
	RoundNone     Round = ""
	RoundImage    Round = "image"
	RoundFallback Round = "fallback"
	RoundShared   Round = "shared"
)

// Advisory kinds.
const (
	AdvisoryNotFood      = "not_food"
	AdvisoryNoImage      = "no_image"
	AdvisoryFetchFailed  = "fetch_failed"
	AdvisoryImageFailed  = "image_failed"
	AdvisorySaveFailed   = "save_failed"
	AdvisoryShareInvalid = "share_invalid"
)

const maxAdvisories = 20

// Advisory is a non-fatal message for the user.
type Advisory struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Timer is the single cooking timer of a session.
type Timer struct {
	ID          uint64    `json:"id"`
	Seconds     int       `json:"seconds"`
	Description string    `json:"description"`
	StartedAt   time.Time `json:"startedAt"`
	EndsAt      time.Time `json:"endsAt"`
	Finished    bool      `json:"finished"`
}

// State is everything a session shows. It is mutated only through the
// transition methods below, with the orchestrator's lock held.
//
// token identifies the displayed recipe set. Image loops capture it when
// dispatched and their results only touch the displayed set while it is
// unchanged. seq identifies the latest discovery request so an older
// request finishing late cannot replace a newer result.
type State struct {
	recipes    []recipe.Recipe
	saved      *saved.Set
	loading    bool
	err        string
	round      Round
	cuisines   []string
	image      media.Image
	timer      *Timer
	timerSeq   uint64
	advisories []Advisory
	token      uint64
	seq        uint64
}

// NewState returns an empty state holding the given saved recipes.
func NewState(savedRecipes []recipe.Recipe) *State {
	return &State{saved: saved.NewSet(savedRecipes)}
}

// Snapshot is an immutable copy of State for readers.
type Snapshot struct {
	Recipes    []recipe.Recipe `json:"recipes"`
	Saved      []recipe.Recipe `json:"saved"`
	Loading    bool            `json:"loading"`
	Error      string          `json:"error,omitempty"`
	Round      Round           `json:"round"`
	NotFood    bool            `json:"notFood"`
	Cuisines   []string        `json:"cuisines"`
	HasImage   bool            `json:"hasImage"`
	Timer      *Timer          `json:"timer,omitempty"`
	Advisories []Advisory      `json:"advisories"`
	Token      uint64          `json:"token"`
}

func (s *State) snapshot() Snapshot {
	snap := Snapshot{
		Recipes:    recipe.CloneAll(s.recipes),
		Saved:      s.saved.List(),
		Loading:    s.loading,
		Error:      s.err,
		Round:      s.round,
		NotFood:    s.round == RoundFallback,
		Cuisines:   append([]string{}, s.cuisines...),
		HasImage:   !s.image.Empty(),
		Advisories: append([]Advisory{}, s.advisories...),
		Token:      s.token,
	}
	if snap.Recipes == nil {
		snap.Recipes = []recipe.Recipe{}
	}
	if s.timer != nil {
		t := *s.timer
		snap.Timer = &t
	}
	return snap
}

// beginDiscover marks a fetch as in flight and returns its request sequence.
func (s *State) beginDiscover(img media.Image, cuisines []string) uint64 {
	s.seq++
	s.loading = true
	s.err = ""
	s.image = img
	s.cuisines = append([]string(nil), cuisines...)
	return s.seq
}

// failDiscover releases loading without touching the displayed recipes.
func (s *State) failDiscover(seq uint64, message string) bool {
	if seq != s.seq {
		return false
	}
	s.loading = false
	s.err = message
	return true
}

// rejectInput records a user-input error outside of any fetch.
func (s *State) rejectInput(message string) {
	s.loading = false
	s.err = message
}

// completeDiscover replaces the displayed set and returns the new token.
// It reports false when a newer request or a reset superseded seq.
func (s *State) completeDiscover(seq uint64, recipes []recipe.Recipe, round Round) (uint64, bool) {
	if seq != s.seq {
		return 0, false
	}
	s.recipes = recipe.CloneAll(recipes)
	s.round = round
	s.loading = false
	s.err = ""
	s.token++
	return s.token, true
}

// applyImage settles one image loop. The displayed recipe is updated only
// while token is current; a saved copy with the same ID is always updated.
func (s *State) applyImage(token uint64, out imaging.Outcome) (updated recipe.Recipe, displayed, savedChanged bool) {
	if token == s.token {
		if i := recipe.IndexOf(s.recipes, out.RecipeID); i >= 0 {
			s.recipes[i] = out.Apply(s.recipes[i])
			updated = s.recipes[i].Clone()
			displayed = true
		}
	}
	if r, ok := s.saved.Get(out.RecipeID); ok && r.ImagePending() {
		r = out.Apply(r)
		savedChanged = s.saved.Update(r)
		if !displayed {
			updated = r
		}
	}
	return updated, displayed, savedChanged
}

// updateSaved applies an externally settled recipe (e.g. from the gallery)
// to the saved copy if that copy is still waiting on its image.
func (s *State) updateSaved(r recipe.Recipe) bool {
	current, ok := s.saved.Get(r.ID)
	if !ok || !current.ImagePending() || r.ImagePending() {
		return false
	}
	return s.saved.Update(r)
}

// reset clears the displayed recipes and invalidates in-flight work.
func (s *State) reset() {
	s.recipes = nil
	s.image = media.Image{}
	s.cuisines = nil
	s.err = ""
	s.round = RoundNone
	s.loading = false
	s.seq++
	s.token++
}

// showShared displays a single shared recipe and returns the new token.
func (s *State) showShared(r recipe.Recipe) uint64 {
	s.seq++
	s.recipes = []recipe.Recipe{r.Clone()}
	s.round = RoundShared
	s.loading = false
	s.err = ""
	s.token++
	return s.token
}

// toggleSaved flips r in the saved set and reports whether it is now saved.
func (s *State) toggleSaved(r recipe.Recipe) bool {
	return s.saved.Toggle(r)
}

func (s *State) addSaved(r recipe.Recipe) bool {
	return s.saved.Add(r)
}

func (s *State) removeSaved(id string) bool {
	return s.saved.Remove(id)
}

// startTimer replaces any running timer.
func (s *State) startTimer(seconds int, description string, now time.Time) Timer {
	s.timerSeq++
	s.timer = &Timer{
		ID:          s.timerSeq,
		Seconds:     seconds,
		Description: description,
		StartedAt:   now,
		EndsAt:      now.Add(time.Duration(seconds) * time.Second),
	}
	return *s.timer
}

// finishTimer marks the timer done if it is still the one identified by id.
func (s *State) finishTimer(id uint64) (Timer, bool) {
	if s.timer == nil || s.timer.ID != id || s.timer.Finished {
		return Timer{}, false
	}
	s.timer.Finished = true
	return *s.timer, true
}

func (s *State) closeTimer() bool {
	if s.timer == nil {
		return false
	}
	s.timer = nil
	return true
}

func (s *State) advise(kind, message string, now time.Time) Advisory {
	a := Advisory{Kind: kind, Message: message, At: now}
	s.advisories = append(s.advisories, a)
	if len(s.advisories) > maxAdvisories {
		s.advisories = s.advisories[len(s.advisories)-maxAdvisories:]
	}
	return a
}

// find looks a recipe up among the displayed and saved recipes.
func (s *State) find(id string) (recipe.Recipe, bool) {
	if i := recipe.IndexOf(s.recipes, id); i >= 0 {
		return s.recipes[i].Clone(), true
	}
	return s.saved.Get(id)
}
