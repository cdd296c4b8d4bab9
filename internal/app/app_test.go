package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plateful/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Port:      "8080",
		PublicURL: "http://localhost:8080",
		AI: config.AIConfig{
			APIKey:           "test-key",
			TextModel:        "gemini-2.5-flash",
			ImageModel:       "gemini-2.5-flash-image",
			ValidationModel:  "gemini-2.5-flash",
			ImageBackend:     config.BackendGemini,
			Timeout:          time.Second,
			ImageConcurrency: 1,
		},
		Media: config.MediaConfig{LocalDir: t.TempDir()},
	}
}

func TestNewServesLocalMediaWithoutBucket(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zap.NewNop(), Options{ServeMedia: true})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Registry)
	assert.NotNil(t, a.Broker)
	assert.NotNil(t, a.Fetcher)
	assert.True(t, a.Models.Allows(a.Config.AI.TextModel))
	assert.NotNil(t, a.Media)
	assert.NotNil(t, a.Vision.Classifier)
	assert.NotNil(t, a.Vision.Renderer)
}

func TestNewInlinesImagesForTools(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zap.NewNop(), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Media)
}

func TestNewRequiresAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.APIKey = ""
	_, err := New(context.Background(), cfg, zap.NewNop(), Options{})
	assert.Error(t, err)
}

func TestStoreKind(t *testing.T) {
	assert.Equal(t, "memory", storeKind(config.Config{}))
	assert.Equal(t, "redis", storeKind(config.Config{RedisURL: "redis://localhost:6379"}))
	assert.Equal(t, "postgres", storeKind(config.Config{DatabaseURL: "postgres://x", RedisURL: "redis://y"}))
}
