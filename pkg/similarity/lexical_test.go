package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexScore(t *testing.T, a, b string) float64 {
	t.Helper()
	score, err := NewLexical().Score(context.Background(), a, b)
	require.NoError(t, err)
	return score
}

func TestLexical_Symmetry(t *testing.T) {
	pairs := [][2]string{
		{"Starlink pricing", "Starlink pricing for 2026"},
		{"Mars colonization plans", "going back to Mars"},
		{"completely unrelated", "different things entirely"},
		{"", "non-empty"},
	}
	for _, pair := range pairs {
		assert.Equal(t, lexScore(t, pair[0], pair[1]), lexScore(t, pair[1], pair[0]),
			"similarity(%q,%q) must be symmetric", pair[0], pair[1])
	}
}

func TestLexical_SelfSimilarity(t *testing.T) {
	texts := []string{
		"Starlink pricing for 2026",
		"the quick brown fox jumps over the lazy dog",
		"single",
	}
	for _, text := range texts {
		assert.GreaterOrEqual(t, lexScore(t, text, text), 0.99,
			"exact match must score near 1 for %q", text)
	}
}

func TestLexical_EmptyUnion(t *testing.T) {
	assert.Equal(t, 0.0, lexScore(t, "", ""))
	// Tokens of two characters or fewer are stripped entirely.
	assert.Equal(t, 0.0, lexScore(t, "a an it", "of to"))
}

func TestLexical_KnownOverlap(t *testing.T) {
	// {starlink, pricing} vs {starlink, pricing, for, 2026}:
	// intersection 2, union 4.
	score := lexScore(t, "Starlink pricing", "Starlink pricing for 2026")
	assert.InDelta(t, 0.5, score, 0.0001)

	// No overlap at all.
	assert.Equal(t, 0.0, lexScore(t, "alpha bravo", "charlie delta"))
}

func TestLexical_CaseInsensitive(t *testing.T) {
	assert.GreaterOrEqual(t, lexScore(t, "MARS Colonization", "mars colonization"), 0.99)
}
