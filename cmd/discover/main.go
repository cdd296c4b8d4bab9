// Command discover runs one recipe discovery for a photo and prints the
// resulting recipes, with their images, as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"plateful/internal/app"
	"plateful/internal/config"
	"plateful/internal/llm"
	"plateful/internal/logging"
	"plateful/internal/media"
	"plateful/internal/recipe"
	"plateful/internal/session"
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(value string) error {
	*l = append(*l, value)
	return nil
}

type result struct {
	Round      session.Round      `json:"round"`
	Recipes    []recipe.Recipe    `json:"recipes"`
	Advisories []session.Advisory `json:"advisories,omitempty"`
}

type options struct {
	imagePath string
	envFile   string
	model     string
	more      bool
	cuisines  listFlag
}

func main() {
	var opts options
	flag.StringVar(&opts.imagePath, "image", "", "path to a photo of ingredients or a dish")
	flag.StringVar(&opts.envFile, "env", ".env", "dotenv file to load")
	flag.StringVar(&opts.model, "model", "", "recipe model to use instead of GEMINI_TEXT_MODEL")
	flag.BoolVar(&opts.more, "more", false, "ask for a second, different batch after the first")
	flag.Var(&opts.cuisines, "cuisine", "preferred cuisine (repeatable)")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "discover: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.imagePath == "" {
		return fmt.Errorf("-image is required")
	}
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	logger, err := logging.NewWithOutput(cfg.LogLevel, cfg.LogFormat, "stderr")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	file, err := os.Open(opts.imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	img, err := media.ReadImage(file, "")
	file.Close()
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	o, err := a.Registry.Session(ctx, "cli")
	if err != nil {
		return err
	}

	// The gallery and image loops run on ctx without the override.
	fetchCtx := llm.WithModel(ctx, opts.model)
	snap, err := o.Discover(fetchCtx, session.Request{Image: img, Cuisines: opts.cuisines})
	if err != nil {
		return err
	}
	logger.Info("first batch ready", zap.Strings("recipes", recipe.Names(snap.Recipes)))

	if opts.more {
		snap, err = o.LoadMore(fetchCtx)
		if err != nil {
			return err
		}
		logger.Info("second batch ready", zap.Strings("recipes", recipe.Names(snap.Recipes)))
	}

	o.WaitForImages()
	snap = o.Snapshot()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result{Round: snap.Round, Recipes: snap.Recipes, Advisories: snap.Advisories})
}
