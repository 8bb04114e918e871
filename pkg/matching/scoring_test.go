package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{
			name:     "identical strings",
			a:        "martha",
			b:        "martha",
			expected: 1.0,
		},
		{
			name:     "classic transposition",
			a:        "martha",
			b:        "marhta",
			expected: 0.9611,
		},
		{
			name:     "moderate similarity",
			a:        "dwayne",
			b:        "duane",
			expected: 0.84,
		},
		{
			name:     "low similarity",
			a:        "dixon",
			b:        "dicksonx",
			expected: 0.8133,
		},
		{
			name:     "no similarity",
			a:        "abc",
			b:        "xyz",
			expected: 0.0,
		},
		{
			name:     "empty left",
			a:        "",
			b:        "martha",
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scorer.JaroWinkler(tt.a, tt.b), 0.0001)
		})
	}
}

func TestJaro(t *testing.T) {
	scorer := NewScorer()

	assert.InDelta(t, 0.9444, scorer.Jaro("martha", "marhta"), 0.0001)
	assert.InDelta(t, 0.7667, scorer.Jaro("dixon", "dicksonx"), 0.0001)
	assert.Equal(t, 1.0, scorer.Jaro("same", "same"))
	assert.Equal(t, 0.0, scorer.Jaro("", "anything"))
}

func TestLevenshteinDistance(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{name: "classic", a: "kitten", b: "sitting", expected: 3},
		{name: "identical", a: "haircut", b: "haircut", expected: 0},
		{name: "empty left", a: "", b: "trim", expected: 4},
		{name: "empty right", a: "trim", b: "", expected: 4},
		{name: "single substitution", a: "cat", b: "car", expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.LevenshteinDistance(tt.a, tt.b))
		})
	}
}

func TestLevenshtein(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 1.0, scorer.Levenshtein("", ""))
	assert.Equal(t, 1.0, scorer.Levenshtein("massage", "massage"))
	assert.InDelta(t, 1.0-3.0/7.0, scorer.Levenshtein("kitten", "sitting"), 0.0001)
}

func TestExactMatch(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 1.0, scorer.ExactMatch("Haircut", "haircut", false))
	assert.Equal(t, 0.0, scorer.ExactMatch("Haircut", "haircut", true))
	assert.Equal(t, 1.0, scorer.ExactMatch("trim", "trim", true))
}
