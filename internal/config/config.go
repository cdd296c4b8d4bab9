package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values.
type Config struct {
	Port        string
	PublicURL   string
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string
	AI          AIConfig
	Vertex      VertexConfig
	Media       MediaConfig
}

// AIConfig selects models and limits for the generative backend.
type AIConfig struct {
	APIKey           string
	TextModel        string
	TextModels       []string
	ImageModel       string
	ValidationModel  string
	ImageBackend     string
	Timeout          time.Duration
	ImageConcurrency int
}

// VertexConfig describes the Vertex AI Imagen backend.
type VertexConfig struct {
	ProjectID          string
	Location           string
	Model              string
	ServiceAccount     string
	ServiceAccountJSON string
}

// MediaConfig describes S3/media related configuration.
type MediaConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicURL       string
	KeyPrefix       string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	LocalDir        string
}

// Image backends understood by the service.
const (
	BackendGemini = "gemini"
	BackendImagen = "imagen"
)

var envBindings = map[string]string{
	"port":                     "APP_PORT",
	"public_url":               "PUBLIC_URL",
	"database_url":             "DATABASE_URL",
	"redis_url":                "REDIS_URL",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
	"ai.api_key":               "GEMINI_API_KEY",
	"ai.text_model":            "GEMINI_TEXT_MODEL",
	"ai.text_models":           "GEMINI_SELECTABLE_MODELS",
	"ai.image_model":           "GEMINI_IMAGE_MODEL",
	"ai.validation_model":      "GEMINI_VALIDATION_MODEL",
	"ai.image_backend":         "IMAGE_BACKEND",
	"ai.timeout":               "AI_TIMEOUT",
	"ai.image_concurrency":     "IMAGE_CONCURRENCY",
	"vertex.project_id":        "VERTEX_PROJECT_ID",
	"vertex.location":          "VERTEX_LOCATION",
	"vertex.model":             "VERTEX_IMAGEN_MODEL",
	"vertex.service_account":   "GOOGLE_APPLICATION_CREDENTIALS",
	"vertex.service_acct_json": "VERTEX_SERVICE_ACCOUNT_JSON",
	"media.bucket":             "S3_BUCKET",
	"media.region":             "S3_REGION",
	"media.endpoint":           "S3_ENDPOINT",
	"media.public_url":         "S3_PUBLIC_URL",
	"media.key_prefix":         "S3_KEY_PREFIX",
	"media.force_path_style":   "S3_FORCE_PATH_STYLE",
	"media.access_key_id":      "S3_ACCESS_KEY_ID",
	"media.secret_access_key":  "S3_SECRET_ACCESS_KEY",
	"media.local_dir":          "MEDIA_LOCAL_DIR",
}

// Load reads an optional dotenv file, then environment variables, and applies defaults.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	cfg := Config{
		Port:        v.GetString("port"),
		PublicURL:   strings.TrimSuffix(v.GetString("public_url"), "/"),
		DatabaseURL: v.GetString("database_url"),
		RedisURL:    v.GetString("redis_url"),
		LogLevel:    v.GetString("log.level"),
		LogFormat:   v.GetString("log.format"),
		AI: AIConfig{
			APIKey:           strings.TrimSpace(v.GetString("ai.api_key")),
			TextModel:        v.GetString("ai.text_model"),
			TextModels:       splitList(v.GetString("ai.text_models")),
			ImageModel:       v.GetString("ai.image_model"),
			ValidationModel:  v.GetString("ai.validation_model"),
			ImageBackend:     strings.ToLower(strings.TrimSpace(v.GetString("ai.image_backend"))),
			Timeout:          v.GetDuration("ai.timeout"),
			ImageConcurrency: v.GetInt("ai.image_concurrency"),
		},
		Vertex: VertexConfig{
			ProjectID:          v.GetString("vertex.project_id"),
			Location:           v.GetString("vertex.location"),
			Model:              v.GetString("vertex.model"),
			ServiceAccount:     v.GetString("vertex.service_account"),
			ServiceAccountJSON: v.GetString("vertex.service_acct_json"),
		},
		Media: MediaConfig{
			Bucket:          v.GetString("media.bucket"),
			Region:          v.GetString("media.region"),
			Endpoint:        v.GetString("media.endpoint"),
			PublicURL:       v.GetString("media.public_url"),
			KeyPrefix:       strings.Trim(v.GetString("media.key_prefix"), "/"),
			ForcePathStyle:  v.GetBool("media.force_path_style"),
			AccessKeyID:     v.GetString("media.access_key_id"),
			SecretAccessKey: v.GetString("media.secret_access_key"),
			LocalDir:        v.GetString("media.local_dir"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("ai.text_model", "gemini-2.5-flash")
	v.SetDefault("ai.image_model", "gemini-2.5-flash-image")
	v.SetDefault("ai.validation_model", "gemini-2.5-flash")
	v.SetDefault("ai.image_backend", BackendGemini)
	v.SetDefault("ai.timeout", "90s")
	v.SetDefault("ai.image_concurrency", 3)
	v.SetDefault("vertex.location", "us-central1")
	v.SetDefault("vertex.model", "imagen-3.0-generate-002")
	v.SetDefault("media.key_prefix", "recipes")
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("config: APP_PORT cannot be empty")
	}
	if c.AI.APIKey == "" {
		return errors.New("config: GEMINI_API_KEY is required")
	}
	switch c.AI.ImageBackend {
	case BackendGemini:
	case BackendImagen:
		if c.Vertex.ProjectID == "" {
			return errors.New("config: VERTEX_PROJECT_ID is required for the imagen backend")
		}
	default:
		return fmt.Errorf("config: unknown IMAGE_BACKEND %q", c.AI.ImageBackend)
	}
	if c.AI.Timeout <= 0 {
		return errors.New("config: AI_TIMEOUT must be positive")
	}
	if c.AI.ImageConcurrency <= 0 {
		return errors.New("config: IMAGE_CONCURRENCY must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MaskedAPIKey shows only the edges of the API key, for startup logs.
func (c Config) MaskedAPIKey() string {
	key := c.AI.APIKey
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
