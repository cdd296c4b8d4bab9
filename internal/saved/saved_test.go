package saved

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plateful/internal/recipe"
)

func dish(id, name string) recipe.Recipe {
	return recipe.Recipe{ID: id, Name: name, Ingredients: []string{"egg"}}
}

func TestToggleIsIdempotentInPairs(t *testing.T) {
	s := NewSet(nil)
	r := dish("1", "Omelette")

	assert.True(t, s.Toggle(r))
	assert.True(t, s.Contains("1"))
	assert.False(t, s.Toggle(r))
	assert.False(t, s.Contains("1"))

	for i := 0; i < 7; i++ {
		s.Toggle(r)
	}
	assert.True(t, s.Contains("1"))
	assert.Equal(t, 1, s.Len())
}

func TestSetNeverHoldsDuplicates(t *testing.T) {
	s := NewSet([]recipe.Recipe{dish("1", "A"), dish("1", "A again"), dish("", "no id"), dish("2", "B")})
	require.Equal(t, 2, s.Len())

	assert.False(t, s.Add(dish("2", "B")))
	ops := []string{"1", "2", "3", "1", "3", "3", "2", "1"}
	for _, id := range ops {
		s.Toggle(dish(id, "x"))
		seen := map[string]bool{}
		for _, r := range s.List() {
			require.False(t, seen[r.ID], "duplicate %s", r.ID)
			seen[r.ID] = true
		}
	}
}

func TestUpdateOnlyTouchesSavedRecipes(t *testing.T) {
	s := NewSet([]recipe.Recipe{dish("1", "A")})

	assert.True(t, s.Update(dish("1", "A").WithImage("https://img/1.png")))
	assert.False(t, s.Update(dish("9", "Z")))

	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "https://img/1.png", got.Image)
	assert.Equal(t, 1, s.Len())
}

func TestListIsACopy(t *testing.T) {
	s := NewSet([]recipe.Recipe{dish("1", "A")})
	list := s.List()
	list[0].Name = "changed"
	list[0].Ingredients[0] = "flour"

	got, _ := s.Get("1")
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, "egg", got.Ingredients[0])
	assert.NotNil(t, NewSet(nil).List())
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	client := uuid.NewString()

	empty, err := store.Load(ctx, client)
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := []recipe.Recipe{dish("1", "A").WithImage("data:image/png;base64,AA=="), dish("2", "B").WithImageFailed()}
	require.NoError(t, store.Save(ctx, client, want))

	got, err := store.Load(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Save(ctx, client, nil))
	got, err = store.Load(ctx, client)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemoryStore(t *testing.T) {
	store, err := NewStore(context.Background(), "", "")
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("PLATEFUL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PLATEFUL_TEST_REDIS_URL not set")
	}
	store, err := NewRedisStore(context.Background(), url)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PLATEFUL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PLATEFUL_TEST_DATABASE_URL not set")
	}
	store, err := NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url")
	assert.Error(t, err)
}
