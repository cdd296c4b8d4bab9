package saved

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plateful/internal/recipe"
)

// PostgresStore persists saved recipes in PostgreSQL, one JSONB row per client.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings, and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS saved_recipes (
        client_id TEXT PRIMARY KEY,
        recipes JSONB NOT NULL DEFAULT '[]'::jsonb,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`)
	if err != nil {
		return fmt.Errorf("create saved_recipes table: %w", err)
	}
	return nil
}

// Load returns the client's saved recipes, or an empty list.
func (s *PostgresStore) Load(ctx context.Context, clientID string) ([]recipe.Recipe, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT recipes FROM saved_recipes WHERE client_id = $1`, clientID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return []recipe.Recipe{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select saved recipes: %w", err)
	}
	return decode(data)
}

// Save upserts the client's saved recipes.
func (s *PostgresStore) Save(ctx context.Context, clientID string, recipes []recipe.Recipe) error {
	data, err := encode(recipes)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO saved_recipes (client_id, recipes, updated_at) VALUES ($1, $2, now())
         ON CONFLICT (client_id) DO UPDATE SET recipes = EXCLUDED.recipes, updated_at = now()`,
		clientID, data); err != nil {
		return fmt.Errorf("upsert saved recipes: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
