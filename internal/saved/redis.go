package saved

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"plateful/internal/recipe"
)

const redisKeyPrefix = "plateful:saved:"

// RedisStore keeps each client's saved recipes under a single Redis key.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at redisURL.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Load returns the client's saved recipes, or an empty list.
func (s *RedisStore) Load(ctx context.Context, clientID string) ([]recipe.Recipe, error) {
	data, err := s.client.Get(ctx, redisKey(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []recipe.Recipe{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get saved recipes: %w", err)
	}
	return decode(data)
}

// Save replaces the client's saved recipes.
func (s *RedisStore) Save(ctx context.Context, clientID string, recipes []recipe.Recipe) error {
	data, err := encode(recipes)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(clientID), data, 0).Err(); err != nil {
		return fmt.Errorf("set saved recipes: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() {
	_ = s.client.Close()
}

func redisKey(clientID string) string {
	return redisKeyPrefix + clientID
}
