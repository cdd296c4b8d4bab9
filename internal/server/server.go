package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"plateful/internal/logging"
	"plateful/internal/session"
	"plateful/internal/vision"
)

// Options configures the HTTP server.
type Options struct {
	Port    string
	Session session.Handler
	Vision  vision.Handler
	Logger  *zap.Logger

	// Media serves locally stored recipe images under /media/. Optional.
	Media http.Handler

	// Static serves the frontend. Optional.
	Static http.Handler

	// WriteTimeout must exceed the AI timeout since discovery waits on the model.
	WriteTimeout time.Duration
}

// New constructs the HTTP server with routes and middleware.
func New(opts Options) *http.Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Minute
	}

	srv := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      Router(opts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server ready", zap.String("addr", srv.Addr))
	return srv
}

// Router builds the route tree without binding an address.
func Router(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logging.Middleware(logger.Named("http")))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	h := opts.Session
	router.Route("/api", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Post("/discover", h.Discover)
		r.Post("/more", h.More)
		r.Post("/reset", h.Reset)
		r.Get("/popular", h.Popular)
		r.Route("/saved", func(r chi.Router) {
			r.Get("/", h.Saved)
			r.Post("/{id}/toggle", h.ToggleSaved)
			r.Delete("/{id}", h.RemoveSaved)
		})
		r.Route("/recipes/{id}", func(r chi.Router) {
			r.Get("/steps", h.Steps)
			r.Get("/share", h.ShareLink)
		})
		r.Post("/shared", h.OpenShared)
		r.Route("/timer", func(r chi.Router) {
			r.Post("/", h.StartTimer)
			r.Delete("/", h.CloseTimer)
		})
		r.Get("/events", h.StreamEvents)
		r.Route("/vision", func(r chi.Router) {
			r.Post("/classify", opts.Vision.Classify)
			r.Post("/render", opts.Vision.Render)
		})
	})

	if opts.Media != nil {
		router.Handle("/media/*", http.StripPrefix("/media/", opts.Media))
	}
	if opts.Static != nil {
		router.Handle("/*", opts.Static)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}
