package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plateful/internal/recipe"
)

func TestOlderRequestCannotReplaceNewerResult(t *testing.T) {
	s := NewState(nil)
	older := s.beginDiscover(photo, nil)
	newer := s.beginDiscover(photo, nil)

	_, ok := s.completeDiscover(newer, []recipe.Recipe{{ID: "b", Name: "B"}}, RoundImage)
	require.True(t, ok)
	_, ok = s.completeDiscover(older, []recipe.Recipe{{ID: "a", Name: "A"}}, RoundImage)
	assert.False(t, ok)

	assert.Equal(t, []string{"B"}, recipe.Names(s.snapshot().Recipes))
	assert.False(t, s.failDiscover(older, "late failure"))
	assert.Empty(t, s.snapshot().Error)
}

func TestResetSupersedesInflightRequest(t *testing.T) {
	s := NewState(nil)
	seq := s.beginDiscover(photo, []string{"Thai"})
	s.reset()

	_, ok := s.completeDiscover(seq, []recipe.Recipe{{ID: "a", Name: "A"}}, RoundImage)
	assert.False(t, ok)
	snap := s.snapshot()
	assert.Empty(t, snap.Recipes)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Cuisines)
}

func TestApplyImageOnlyFillsPendingSavedCopies(t *testing.T) {
	s := NewState([]recipe.Recipe{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B", Image: "https://cdn.example/b.png"},
	})

	_, displayed, changed := s.applyImage(99, outcomeFor("a", "https://cdn.example/a.png"))
	assert.False(t, displayed)
	assert.True(t, changed)

	_, _, changed = s.applyImage(99, outcomeFor("b", "https://cdn.example/other.png"))
	assert.False(t, changed)
	got, _ := s.saved.Get("b")
	assert.Equal(t, "https://cdn.example/b.png", got.Image)
}

func TestUpdateSavedIgnoresPendingSources(t *testing.T) {
	s := NewState([]recipe.Recipe{{ID: "a", Name: "A"}})
	assert.False(t, s.updateSaved(recipe.Recipe{ID: "a", Name: "A"}))
	assert.True(t, s.updateSaved(recipe.Recipe{ID: "a", Name: "A", Image: "x"}))
	assert.False(t, s.updateSaved(recipe.Recipe{ID: "a", Name: "A", Image: "y"}))
}

func TestAdvisoriesAreBounded(t *testing.T) {
	s := NewState(nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxAdvisories+5; i++ {
		s.advise(AdvisoryFetchFailed, "again", start.Add(time.Duration(i)*time.Second))
	}
	snap := s.snapshot()
	require.Len(t, snap.Advisories, maxAdvisories)
	assert.Equal(t, start.Add(5*time.Second), snap.Advisories[0].At)
}
