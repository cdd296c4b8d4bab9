package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStep(t *testing.T) {
	cases := []struct {
		text     string
		seconds  int
		hasTimer bool
	}{
		{"Simmer for 10 minutes", 600, true},
		{"Bake for 1 hour", 3600, true},
		{"Let rest 5 to 10 minutes", 600, true},
		{"Add salt to taste", 0, false},
		{"Roast 2 HOURS, then rest 15 minutes", 7200, true},
		{"Chill for 1 minute", 60, true},
		{"Cut into 4 pieces", 0, false},
		{"Cure for 168 hours", 604800, true},
		{"Cure for 169 hours", 0, false},
		{"Braise for 9223372036854775 hours", 0, false},
		{"Braise for 99999999999999999999 minutes", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			step := ParseStep(tc.text)
			assert.Equal(t, tc.text, step.Text)
			assert.Equal(t, tc.hasTimer, step.HasTimer)
			assert.Equal(t, tc.seconds, step.Seconds)
		})
	}
}

func TestStepsKeepsInstructionOrder(t *testing.T) {
	steps := Steps(Recipe{Instructions: []string{"Boil 3 minutes", "Serve"}})

	if assert.Len(t, steps, 2) {
		assert.Equal(t, 180, steps[0].Seconds)
		assert.False(t, steps[1].HasTimer)
	}
}
