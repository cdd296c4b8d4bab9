package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"plateful/internal/app"
	"plateful/internal/config"
	"plateful/internal/logging"
	"plateful/internal/server"
	"plateful/internal/session"
)

const (
	sessionIdleTimeout = 24 * time.Hour
	sweepInterval      = 10 * time.Minute
	shutdownGrace      = 15 * time.Second
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("port", cfg.Port),
		zap.String("gemini_api_key", cfg.MaskedAPIKey()),
		zap.String("text_model", cfg.AI.TextModel),
		zap.String("image_backend", cfg.AI.ImageBackend),
		zap.Duration("ai_timeout", cfg.AI.Timeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{ServeMedia: true})
	if err != nil {
		logger.Fatal("failed to assemble components", zap.Error(err))
	}
	defer a.Close()

	go func() {
		if err := a.Registry.Gallery().Load(ctx); err != nil {
			logger.Warn("popular recipes will be retried on demand", zap.Error(err))
		}
	}()
	go sweep(ctx, a, logger)

	var static http.Handler
	if info, err := os.Stat("web"); err == nil && info.IsDir() {
		static = http.FileServer(http.Dir("web"))
	}

	// discovery runs classification and generation back to back
	writeTimeout := 2*cfg.AI.Timeout + 10*time.Second

	sessionHandler := session.Handler{
		Registry:  a.Registry,
		Broker:    a.Broker,
		Fetcher:   a.Fetcher,
		Models:    a.Models,
		PublicURL: cfg.PublicURL,
		Logger:    logger.Named("api"),
	}

	srv := server.New(server.Options{
		Port:         cfg.Port,
		Session:      sessionHandler,
		Vision:       a.Vision,
		Media:        a.Media,
		Static:       static,
		Logger:       logger,
		WriteTimeout: writeTimeout,
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func sweep(ctx context.Context, a *app.App, logger *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Registry.Sweep(sessionIdleTimeout); n > 0 {
				logger.Debug("idle sessions evicted", zap.Int("count", n))
			}
		}
	}
}
