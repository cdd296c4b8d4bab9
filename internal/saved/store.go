// Package saved persists each client's saved recipes as one JSON list.
package saved

import (
	"context"
	"encoding/json"
	"fmt"

	"plateful/internal/recipe"
)

// Store loads and replaces a client's saved recipe list.
type Store interface {
	Load(ctx context.Context, clientID string) ([]recipe.Recipe, error)
	Save(ctx context.Context, clientID string, recipes []recipe.Recipe) error
	Close()
}

// NewStore selects a backing store: PostgreSQL when a database URL is given,
// Redis when a Redis URL is given, memory otherwise.
func NewStore(ctx context.Context, databaseURL, redisURL string) (Store, error) {
	switch {
	case databaseURL != "":
		return NewPostgresStore(ctx, databaseURL)
	case redisURL != "":
		return NewRedisStore(ctx, redisURL)
	default:
		return NewInMemoryStore(), nil
	}
}

func encode(recipes []recipe.Recipe) ([]byte, error) {
	if recipes == nil {
		recipes = []recipe.Recipe{}
	}
	data, err := json.Marshal(recipes)
	if err != nil {
		return nil, fmt.Errorf("saved: encode recipes: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]recipe.Recipe, error) {
	if len(data) == 0 {
		return []recipe.Recipe{}, nil
	}
	var recipes []recipe.Recipe
	if err := json.Unmarshal(data, &recipes); err != nil {
		return nil, fmt.Errorf("saved: decode recipes: %w", err)
	}
	if recipes == nil {
		recipes = []recipe.Recipe{}
	}
	return recipes, nil
}
