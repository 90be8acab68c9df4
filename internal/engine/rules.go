package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Base delta per interaction type.
var baseDelta = map[string]int{
	"small_talk":       2,
	"thanks":           4,
	"helpful_dialogue": 5,
	"deep_talk":        6,
	"celebration":      9,
	"cold":             -2,
	"rude":             -6,
	"abuse":            -10,
}

// Multipliers are kept in percent so every step is exact integer arithmetic.
var intensityPercent = map[int]int{1: 80, 2: 100, 3: 125}

const positiveBiasPercent = 115

// repeatPercent is the anti-repeat factor for the nth positive event of one
// type inside the repeat window (n counts the current event).
func repeatPercent(n int) int {
	switch {
	case n <= 1:
		return 100
	case n == 2:
		return 75
	case n == 3:
		return 50
	default:
		return 30
	}
}

// roundDiv returns a/b rounded half away from zero. b must be positive.
func roundDiv(a, b int) int {
	if a >= 0 {
		return (2*a + b) / (2 * b)
	}
	return -((-2*a + b) / (2 * b))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// InteractionTypes returns the known interaction types, sorted.
func InteractionTypes() []string {
	out := make([]string, 0, len(baseDelta))
	for k := range baseDelta {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BaseDelta returns the base score for an interaction type.
func BaseDelta(interactionType string) (int, bool) {
	d, ok := baseDelta[normalizeType(interactionType)]
	return d, ok
}

func normalizeType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ErrInvalidArgument wraps malformed input such as an empty user id.
var ErrInvalidArgument = errors.New("invalid argument")

// RangeError is returned for a level outside the configured bounds.
type RangeError struct {
	Level int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("level %d outside [%d, %d]", e.Level, e.Min, e.Max)
}

type UnknownInteractionTypeError struct {
	Type string
}

func (e *UnknownInteractionTypeError) Error() string {
	return fmt.Sprintf("unknown interaction type %q (allowed: %s)", e.Type, strings.Join(InteractionTypes(), ", "))
}

type InvalidIntensityError struct {
	Intensity int
}

func (e *InvalidIntensityError) Error() string {
	return fmt.Sprintf("intensity %d must be 1, 2 or 3", e.Intensity)
}
