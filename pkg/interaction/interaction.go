package interaction

import (
	"time"

	"github.com/google/uuid"

	"github.com/telltail/conmem/pkg/session"
)

// Category describes how a new turn relates to prior discourse.
// The numeric values are part of the store's index contract and must not change.
type Category int

const (
	// DirectContinuation: the turn continues the currently active sentence.
	DirectContinuation Category = 1

	// StrongRelatedness: strongly related to a recent turn, but not the active one.
	StrongRelatedness Category = 2

	// ModerateRelatedness: related to recent discourse below the strong threshold.
	ModerateRelatedness Category = 3

	// PatternReinforcement: the turn matches a recurring pattern mined from history.
	PatternReinforcement Category = 4

	// Clarification: the turn asks for elaboration of recent discourse.
	Clarification Category = 5

	// TopicShift: weak or unrelated shift; the fallback category.
	TopicShift Category = 6

	// Resumption: the turn explicitly returns to an earlier topic.
	Resumption Category = 7

	// Contradiction: the turn logically opposes the active sentence.
	Contradiction Category = 8

	// FirstInteraction: no prior context exists.
	FirstInteraction Category = 9
)

// Valid reports whether c is one of the nine defined categories.
func (c Category) Valid() bool {
	return c >= DirectContinuation && c <= FirstInteraction
}

func (c Category) String() string {
	switch c {
	case DirectContinuation:
		return "direct_continuation"
	case StrongRelatedness:
		return "strong_relatedness"
	case ModerateRelatedness:
		return "moderate_relatedness"
	case PatternReinforcement:
		return "pattern_reinforcement"
	case Clarification:
		return "clarification"
	case TopicShift:
		return "topic_shift"
	case Resumption:
		return "resumption"
	case Contradiction:
		return "contradiction"
	case FirstInteraction:
		return "first_interaction"
	default:
		return "unknown"
	}
}

// RelationshipResult is the classification output for a single turn.
// Produced once at classification time and immutable thereafter.
type RelationshipResult struct {
	// Category is one of the nine defined relationship categories
	Category Category `json:"category"`

	// Confidence is the classifier's certainty in [0,1]
	Confidence float64 `json:"confidence"`

	// Similarity is the similarity score that drove the decision, in [0,1]
	Similarity float64 `json:"similarity"`

	// Transition is a phrasing label for the response collaborator,
	// chosen from a fixed per-category pool
	Transition string `json:"transition"`

	// PatternID identifies the matched pattern for PatternReinforcement
	PatternID string `json:"pattern_id,omitempty"`

	// ResumptionTargetID links to the prior interaction being resumed
	ResumptionTargetID string `json:"resumption_target_id,omitempty"`
}

// Interaction represents one recorded user/assistant turn.
// The ID is immutable and globally unique; records are never mutated
// after creation except to attach derived fields (embedding, summary).
type Interaction struct {
	// ID is a unique identifier for the turn
	ID string `json:"id"`

	// SessionID scopes the turn to a conversation session
	SessionID session.ID `json:"session_id"`

	// Ordinal is the turn's position within its session, starting at 0
	Ordinal int `json:"ordinal"`

	// UserID is optional attribution within the session
	UserID string `json:"user_id,omitempty"`

	// Input is the user's utterance
	Input string `json:"input"`

	// Response is the assistant's reply, recorded by the orchestrating caller
	Response string `json:"response"`

	// CreatedAt is when the turn was accepted; monotonically
	// non-decreasing within a session
	CreatedAt time.Time `json:"created_at"`

	// Relationship is the classification result for this turn
	Relationship *RelationshipResult `json:"relationship,omitempty"`

	// Topics are the extracted topic tokens used by the topic index
	Topics []string `json:"topics,omitempty"`

	// InputEmbedding is the cached embedding vector for the input, if any
	InputEmbedding []float32 `json:"input_embedding,omitempty"`

	// PreviousID links a resumption turn to the turn it resumes
	PreviousID string `json:"previous_id,omitempty"`

	// RelatedIDs are other turns this one was judged related to
	RelatedIDs []string `json:"related_ids,omitempty"`

	// Summary is set only when the retention policy compresses the record
	Summary string `json:"summary,omitempty"`
}

// NewID returns a fresh globally unique interaction ID.
func NewID() string {
	return uuid.New().String()
}

// Clone returns a deep copy of the interaction so callers receive
// read-only views of store-owned records.
func (it *Interaction) Clone() *Interaction {
	if it == nil {
		return nil
	}
	dup := *it
	if it.Relationship != nil {
		rel := *it.Relationship
		dup.Relationship = &rel
	}
	dup.Topics = append([]string(nil), it.Topics...)
	dup.InputEmbedding = append([]float32(nil), it.InputEmbedding...)
	dup.RelatedIDs = append([]string(nil), it.RelatedIDs...)
	return &dup
}

// transitionPools holds the per-category phrasing labels handed to the
// response collaborator. The pool contents are fixed; selection is
// deterministic for identical inputs.
var transitionPools = map[Category][]string{
	DirectContinuation:   {"continuing directly", "building on that", "staying with the thread"},
	StrongRelatedness:    {"closely related", "connecting to a recent point", "picking up a nearby thread"},
	ModerateRelatedness:  {"loosely related", "adjacent topic", "drifting within the theme"},
	PatternReinforcement: {"recurring theme", "familiar ground", "reinforcing a pattern"},
	Clarification:        {"clarifying", "unpacking the last point", "elaborating"},
	TopicShift:           {"new topic", "changing direction", "fresh thread"},
	Resumption:           {"returning to an earlier topic", "picking the thread back up", "resuming"},
	Contradiction:        {"revisiting a claim", "reconciling a contradiction", "correcting course"},
	FirstInteraction:     {"opening", "starting fresh", "first contact"},
}

// TransitionFor returns the phrasing label for a category. The input
// text seeds the pick so identical turns always receive the same label.
func TransitionFor(c Category, input string) string {
	pool, ok := transitionPools[c]
	if !ok || len(pool) == 0 {
		return "new topic"
	}
	return pool[len(input)%len(pool)]
}
