package recipe

import (
	"regexp"
	"strconv"
	"strings"
)

// durationPattern matches "[N to] N minute(s)|hour(s)". The second number wins.
var durationPattern = regexp.MustCompile(`(?i)(?:(\d+)\s*to\s*)?(\d+)\s*(minutes?|hours?)\b`)

// MaxTimerSeconds bounds any timer a step can offer. Longer phrases are not timers.
const MaxTimerSeconds = 7 * 24 * 60 * 60

// Step is a single instruction with an optional timer duration.
type Step struct {
	Text     string `json:"text"`
	Seconds  int    `json:"seconds,omitempty"`
	HasTimer bool   `json:"hasTimer"`
}

// ParseStep extracts the first duration phrase in text.
func ParseStep(text string) Step {
	step := Step{Text: text}
	match := durationPattern.FindStringSubmatch(text)
	if match == nil {
		return step
	}
	value, err := strconv.Atoi(match[2])
	if err != nil || value <= 0 {
		return step
	}

	unit := 60
	if strings.HasPrefix(strings.ToLower(match[3]), "hour") {
		unit = 3600
	}
	if value > MaxTimerSeconds/unit {
		return step
	}
	step.Seconds = value * unit
	step.HasTimer = true
	return step
}

// Steps parses every instruction of the recipe in order.
func Steps(r Recipe) []Step {
	steps := make([]Step, 0, len(r.Instructions))
	for _, instruction := range r.Instructions {
		steps = append(steps, ParseStep(instruction))
	}
	return steps
}
