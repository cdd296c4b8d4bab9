// Package app assembles the AI, storage and session components from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"plateful/internal/config"
	"plateful/internal/events"
	"plateful/internal/imaging"
	"plateful/internal/llm"
	"plateful/internal/media"
	"plateful/internal/saved"
	"plateful/internal/session"
	"plateful/internal/vision"
)

// Options tweaks how the components are assembled.
type Options struct {
	// ServeMedia stores accepted images on local disk when no bucket is
	// configured, for the HTTP server to expose under /media/.
	ServeMedia bool
}

// App holds the assembled components.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Registry *session.Registry
	Broker   *events.Broker
	Fetcher  *media.Fetcher
	Models   llm.Models
	Vision   vision.Handler
	// Media serves locally stored images; nil when images go to a bucket or inline.
	Media http.Handler

	closers []func()
}

// New builds every component. bg bounds background work such as image loops.
func New(bg context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Broker: events.NewBroker()}

	client, err := llm.NewClient(bg, cfg.AI.APIKey)
	if err != nil {
		return nil, err
	}
	recipes := llm.NewRecipeClient(client.Models, cfg.AI.TextModel, cfg.AI.Timeout, logger)
	classifier := vision.NewClassifier(client.Models, cfg.AI.ValidationModel, cfg.AI.Timeout, logger)

	var renderer vision.ImageGenerator
	switch cfg.AI.ImageBackend {
	case config.BackendImagen:
		imagen := vision.NewVertexImagen(vision.VertexImagenConfig{
			ProjectID:          cfg.Vertex.ProjectID,
			Location:           cfg.Vertex.Location,
			Model:              cfg.Vertex.Model,
			ServiceAccount:     cfg.Vertex.ServiceAccount,
			ServiceAccountJSON: cfg.Vertex.ServiceAccountJSON,
		})
		a.closers = append(a.closers, func() { _ = imagen.Close() })
		renderer = imagen
		logger.Info("image backend ready", zap.String("backend", "vertex imagen"), zap.String("model", cfg.Vertex.Model))
	default:
		renderer = vision.NewGeminiImageGenerator(client.Models, cfg.AI.ImageModel, cfg.AI.Timeout)
		logger.Info("image backend ready", zap.String("backend", "gemini"), zap.String("model", cfg.AI.ImageModel))
	}

	uploader, err := a.uploader(bg, cfg, opts)
	if err != nil {
		return nil, err
	}
	publisher := media.NewPublisher(uploader, logger.Named("media"))
	loops := imaging.New(renderer, classifier, publisher, cfg.AI.ImageConcurrency, logger)

	store, err := saved.NewStore(bg, cfg.DatabaseURL, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("app: init saved store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	logger.Info("saved store ready", zap.String("backend", storeKind(cfg)))

	a.Registry = session.NewRegistry(bg, session.Deps{
		Gateway: session.NewGateway(recipes, classifier),
		Loops:   loops,
		Store:   store,
		Events:  a.Broker,
		Logger:  logger.Named("session"),
	})
	a.Fetcher = media.NewFetcher(cfg.AI.Timeout)
	a.Models = llm.NewModels(append([]string{cfg.AI.TextModel}, cfg.AI.TextModels...)...)
	a.Vision = vision.Handler{Classifier: classifier, Renderer: renderer}
	return a, nil
}

func (a *App) uploader(ctx context.Context, cfg config.Config, opts Options) (media.Uploader, error) {
	s3cfg := media.Config{
		Bucket:          cfg.Media.Bucket,
		Region:          cfg.Media.Region,
		Endpoint:        cfg.Media.Endpoint,
		PublicURL:       cfg.Media.PublicURL,
		KeyPrefix:       cfg.Media.KeyPrefix,
		ForcePathStyle:  cfg.Media.ForcePathStyle,
		AccessKeyID:     cfg.Media.AccessKeyID,
		SecretAccessKey: cfg.Media.SecretAccessKey,
	}
	if s3cfg.Enabled() {
		uploader, err := media.NewS3Uploader(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("app: init media uploader: %w", err)
		}
		a.Logger.Info("media uploader ready", zap.String("bucket", cfg.Media.Bucket))
		return uploader, nil
	}
	if !opts.ServeMedia {
		a.Logger.Info("media uploader disabled, images are inlined")
		return media.Disabled(), nil
	}

	local, err := media.NewLocalUploader(cfg.Media.LocalDir, cfg.PublicURL+"/media")
	if err != nil {
		return nil, fmt.Errorf("app: init local media: %w", err)
	}
	a.Media = http.FileServer(http.Dir(local.BaseDir))
	a.Logger.Info("media uploader: using local storage (S3 config missing)", zap.String("dir", local.BaseDir))
	return local, nil
}

// Close releases backend connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func storeKind(cfg config.Config) string {
	switch {
	case cfg.DatabaseURL != "":
		return "postgres"
	case cfg.RedisURL != "":
		return "redis"
	default:
		return "memory"
	}
}
