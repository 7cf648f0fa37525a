package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryValid(t *testing.T) {
	for c := DirectContinuation; c <= FirstInteraction; c++ {
		assert.True(t, c.Valid(), "category %d should be valid", c)
		assert.NotEqual(t, "unknown", c.String())
	}
	assert.False(t, Category(0).Valid())
	assert.False(t, Category(10).Valid())
	assert.Equal(t, "unknown", Category(42).String())
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID()
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id generated")
		seen[id] = struct{}{}
	}
}

func TestClone_Independent(t *testing.T) {
	original := &Interaction{
		ID:           NewID(),
		SessionID:    "s1",
		Input:        "tell me about mars",
		Topics:       []string{"mars"},
		RelatedIDs:   []string{"a", "b"},
		Relationship: &RelationshipResult{Category: TopicShift, Confidence: 0.7},
	}

	dup := original.Clone()
	dup.Topics[0] = "venus"
	dup.RelatedIDs[0] = "z"
	dup.Relationship.Category = Resumption

	assert.Equal(t, "mars", original.Topics[0])
	assert.Equal(t, "a", original.RelatedIDs[0])
	assert.Equal(t, TopicShift, original.Relationship.Category)
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Back to Mars: colonization, pricing & Starlink!", 2)
	assert.Equal(t, []string{"back", "mars", "colonization", "pricing", "starlink"}, tokens)
}

func TestExtractTopics(t *testing.T) {
	topics := ExtractTopics("What about the Starlink pricing for Starlink in 2026?", 0)
	assert.Equal(t, []string{"starlink", "pricing", "2026"}, topics)

	capped := ExtractTopics("alpha bravo charlie delta", 2)
	assert.Equal(t, []string{"alpha", "bravo"}, capped)
}

func TestTransitionFor_Deterministic(t *testing.T) {
	a := TransitionFor(Resumption, "going back to mars")
	b := TransitionFor(Resumption, "going back to mars")
	assert.Equal(t, a, b)
	assert.NotEmpty(t, TransitionFor(Category(99), "anything"))
}
