// Package imaging acquires an illustrative image for each recipe: generate,
// validate against the dish name, refine the prompt once, give up.
package imaging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"plateful/internal/media"
	"plateful/internal/prompts"
	"plateful/internal/recipe"
)

// MaxAttempts is the generation budget per recipe.
const MaxAttempts = 2

// State is a step of the per-recipe acquisition loop.
type State int

const (
	Pending State = iota
	Generating
	Validating
	Refining
	Accepted
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Generating:
		return "generating"
	case Validating:
		return "validating"
	case Refining:
		return "refining"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Generator renders an image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (media.Image, error)
}

// Validator judges whether an image shows the named dish. It never fails;
// an undecided answer is false.
type Validator interface {
	MatchesRecipe(ctx context.Context, name string, img media.Image) bool
}

// Publisher turns an accepted image into a displayable URI.
type Publisher interface {
	Publish(ctx context.Context, name string, img media.Image) string
}

// Outcome is the settled result of one loop.
type Outcome struct {
	RecipeID string
	Image    string
	Failed   bool
	Attempts int
	State    State
	Err      error
}

// Apply writes the outcome onto the recipe's image fields.
func (o Outcome) Apply(r recipe.Recipe) recipe.Recipe {
	if o.Failed {
		return r.WithImageFailed()
	}
	return r.WithImage(o.Image)
}

// Acquirer runs acquisition loops. Loops across all dispatches share one
// concurrency limit.
type Acquirer struct {
	generator Generator
	validator Validator
	publisher Publisher
	slots     *semaphore.Weighted
	logger    *zap.Logger
}

// New constructs an acquirer allowing at most concurrency loops at once.
func New(generator Generator, validator Validator, publisher Publisher, concurrency int, logger *zap.Logger) *Acquirer {
	if concurrency <= 0 {
		concurrency = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		generator: generator,
		validator: validator,
		publisher: publisher,
		slots:     semaphore.NewWeighted(int64(concurrency)),
		logger:    logger.Named("imaging"),
	}
}

// Run drives one recipe's loop to Accepted or Rejected.
func (a *Acquirer) Run(ctx context.Context, r recipe.Recipe) Outcome {
	log := a.logger.With(zap.String("recipe_id", r.ID), zap.String("recipe", r.Name))
	prompt := prompts.ImagePrompt(r.ImagePrompt, r.Name, r.Description)
	out := Outcome{RecipeID: r.ID}

	var img media.Image
	state := Pending
	for {
		next := state
		switch state {
		case Pending:
			next = Generating

		case Generating:
			if err := ctx.Err(); err != nil {
				out.Err = err
				next = Rejected
				break
			}
			out.Attempts++
			generated, err := a.generator.Generate(ctx, prompt)
			if err != nil {
				out.Err = err
				next = Rejected
				break
			}
			img = generated
			next = Validating

		case Validating:
			switch {
			case a.validator.MatchesRecipe(ctx, r.Name, img):
				next = Accepted
			case out.Attempts < MaxAttempts:
				next = Refining
			default:
				next = Rejected
			}

		case Refining:
			prompt = prompts.RefinedImagePrompt(r.Name, r.Description)
			next = Generating

		case Accepted:
			out.State = Accepted
			out.Image = a.publisher.Publish(ctx, r.Name, img)
			log.Info("image accepted", zap.Int("attempts", out.Attempts))
			return out

		case Rejected:
			out.State = Rejected
			out.Failed = true
			log.Warn("image rejected", zap.Int("attempts", out.Attempts), zap.Error(out.Err))
			return out
		}

		log.Debug("image loop transition",
			zap.Stringer("from", state),
			zap.Stringer("to", next),
			zap.Int("attempt", out.Attempts),
		)
		state = next
	}
}

// Dispatch starts one loop per recipe in the background and calls settle as
// each finishes, in completion order. The returned func blocks until all
// loops have settled.
func (a *Acquirer) Dispatch(ctx context.Context, recipes []recipe.Recipe, settle func(Outcome)) (wait func()) {
	batch := recipe.CloneAll(recipes)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var grp errgroup.Group
		for _, r := range batch {
			grp.Go(func() error {
				if err := a.slots.Acquire(ctx, 1); err != nil {
					settle(Outcome{RecipeID: r.ID, Failed: true, State: Rejected, Err: err})
					return nil
				}
				defer a.slots.Release(1)
				settle(a.Run(ctx, r))
				return nil
			})
		}
		_ = grp.Wait()
	}()

	return func() { <-done }
}
