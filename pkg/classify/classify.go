// Package classify assigns one of nine relationship categories to a
// new conversational turn. The decision procedure is an ordered chain
// of rules evaluated in sequence; the first satisfied rule wins, so a
// resumption cue beats plain high similarity even when both hold.
package classify

import (
	"context"
	"strings"

	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/pattern"
	"github.com/telltail/conmem/pkg/similarity"
)

// Config contains configuration options for the classifier.
type Config struct {
	// DirectThreshold is the similarity needed for direct continuation
	// and strong relatedness.
	DirectThreshold float64

	// ModerateThreshold is the lower similarity bound for moderate
	// relatedness.
	ModerateThreshold float64

	// ClarificationThreshold is the similarity floor for the
	// clarification rule.
	ClarificationThreshold float64

	// ResumptionThreshold is the similarity a prior turn must reach for
	// a resumption cue to bind to it.
	ResumptionThreshold float64

	// ResumptionCues, ClarificationCues and NegationCues are the
	// keyword vocabularies the cue rules match against, lowercase.
	ResumptionCues    []string
	ClarificationCues []string
	NegationCues      []string
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{
		DirectThreshold:        0.75,
		ModerateThreshold:      0.40,
		ClarificationThreshold: 0.30,
		ResumptionThreshold:    0.40,
		ResumptionCues: []string{
			"back to", "going back", "earlier", "we discussed",
			"we talked about", "previously", "last time", "before you said",
		},
		ClarificationCues: []string{
			"what do you mean", "can you elaborate", "could you clarify",
			"can you explain", "i don't understand", "in other words",
			"clarify", "elaborate",
		},
		NegationCues: []string{
			"no,", "not", "wrong", "incorrect", "actually", "disagree",
			"that's false", "never said", "untrue",
		},
	}
}

// Request carries everything one classification needs. RecentTurns is
// the bounded recent window; LookbackTurns extends it with the tail of
// the full history for resumption matching.
type Request struct {
	Input           string
	CurrentSentence string
	RecentTurns     []*interaction.Interaction
	LookbackTurns   []*interaction.Interaction
	IsFirst         bool
	Patterns        *pattern.Set
}

// Classifier is a pure decision procedure; the only I/O it performs is
// similarity scoring through the injected scorer.
type Classifier struct {
	config Config
	scorer similarity.Scorer
	rules  []rule
}

type rule struct {
	name string
	eval func(ctx context.Context, st *state) *interaction.RelationshipResult
}

// state accumulates lazily computed similarity facts shared across the
// rule chain for one request.
type state struct {
	req   *Request
	input string

	similaritiesComputed bool
	currentSimilarity    float64
	recentSimilarity     float64
}

// NewClassifier creates a classifier over the given scorer.
func NewClassifier(config Config, scorer similarity.Scorer) *Classifier {
	defaults := DefaultConfig()
	if config.DirectThreshold <= 0 {
		config.DirectThreshold = defaults.DirectThreshold
	}
	if config.ModerateThreshold <= 0 {
		config.ModerateThreshold = defaults.ModerateThreshold
	}
	if config.ClarificationThreshold <= 0 {
		config.ClarificationThreshold = defaults.ClarificationThreshold
	}
	if config.ResumptionThreshold <= 0 {
		config.ResumptionThreshold = defaults.ResumptionThreshold
	}
	if len(config.ResumptionCues) == 0 {
		config.ResumptionCues = defaults.ResumptionCues
	}
	if len(config.ClarificationCues) == 0 {
		config.ClarificationCues = defaults.ClarificationCues
	}
	if len(config.NegationCues) == 0 {
		config.NegationCues = defaults.NegationCues
	}

	c := &Classifier{
		config: config,
		scorer: scorer,
	}
	c.rules = []rule{
		{name: "first_interaction", eval: c.ruleFirstInteraction},
		{name: "resumption", eval: c.ruleResumption},
		{name: "contradiction", eval: c.ruleContradiction},
		{name: "direct_continuation", eval: c.ruleDirectContinuation},
		{name: "strong_relatedness", eval: c.ruleStrongRelatedness},
		{name: "moderate_relatedness", eval: c.ruleModerateRelatedness},
		{name: "clarification", eval: c.ruleClarification},
		{name: "pattern_reinforcement", eval: c.rulePatternReinforcement},
	}
	return c
}

// Classify evaluates the rule chain and always returns a complete
// result; anything unmatched falls through to the topic-shift category.
func (c *Classifier) Classify(ctx context.Context, req *Request) *interaction.RelationshipResult {
	st := &state{
		req:   req,
		input: strings.ToLower(req.Input),
	}

	for _, r := range c.rules {
		if result := r.eval(ctx, st); result != nil {
			result.Transition = interaction.TransitionFor(result.Category, req.Input)
			log.DebugContext(ctx, "Classified turn",
				"rule", r.name,
				"category", result.Category,
				"confidence", result.Confidence,
				"similarity", result.Similarity,
			)
			return result
		}
	}

	// Fallback: weak or unrelated shift.
	result := &interaction.RelationshipResult{
		Category:   interaction.TopicShift,
		Confidence: 0.7,
		Similarity: st.maxSimilarity(),
		Transition: interaction.TransitionFor(interaction.TopicShift, req.Input),
	}
	log.DebugContext(ctx, "Classified turn",
		"rule", "topic_shift",
		"category", result.Category,
		"confidence", result.Confidence,
	)
	return result
}

func (c *Classifier) ruleFirstInteraction(ctx context.Context, st *state) *interaction.RelationshipResult {
	if !st.req.IsFirst && (len(st.req.RecentTurns) > 0 || len(st.req.LookbackTurns) > 0 || st.req.CurrentSentence != "") {
		return nil
	}
	return &interaction.RelationshipResult{
		Category:   interaction.FirstInteraction,
		Confidence: 1.0,
	}
}

func (c *Classifier) ruleResumption(ctx context.Context, st *state) *interaction.RelationshipResult {
	if !containsCue(st.input, c.config.ResumptionCues) {
		return nil
	}

	// The cue must bind to an actual prior turn: scan the recent window
	// plus the history lookback for the best match.
	bestID := ""
	bestScore := 0.0
	seen := make(map[string]bool)
	for _, candidates := range [][]*interaction.Interaction{st.req.RecentTurns, st.req.LookbackTurns} {
		for _, turn := range candidates {
			if seen[turn.ID] {
				continue
			}
			seen[turn.ID] = true
			score := c.scorer.Score(ctx, turn.Input, st.req.Input)
			if score > bestScore {
				bestScore = score
				bestID = turn.ID
			}
		}
	}
	if bestScore <= c.config.ResumptionThreshold {
		return nil
	}

	return &interaction.RelationshipResult{
		Category:           interaction.Resumption,
		Confidence:         0.9,
		Similarity:         bestScore,
		ResumptionTargetID: bestID,
	}
}

// ruleContradiction is the similarity-independent negation heuristic:
// the input pushes back with a negation cue while still talking about
// what the current sentence talks about.
func (c *Classifier) ruleContradiction(ctx context.Context, st *state) *interaction.RelationshipResult {
	if st.req.CurrentSentence == "" {
		return nil
	}
	if !containsCue(st.input, c.config.NegationCues) {
		return nil
	}
	if sharedContentTokens(st.req.Input, st.req.CurrentSentence) == 0 {
		return nil
	}
	return &interaction.RelationshipResult{
		Category:   interaction.Contradiction,
		Confidence: 0.85,
	}
}

func (c *Classifier) ruleDirectContinuation(ctx context.Context, st *state) *interaction.RelationshipResult {
	st.computeSimilarities(ctx, c.scorer)
	if st.currentSimilarity < c.config.DirectThreshold {
		return nil
	}
	return &interaction.RelationshipResult{
		Category:   interaction.DirectContinuation,
		Confidence: 0.9,
		Similarity: st.currentSimilarity,
	}
}

func (c *Classifier) ruleStrongRelatedness(ctx context.Context, st *state) *interaction.RelationshipResult {
	if st.maxSimilarity() < c.config.DirectThreshold {
		return nil
	}
	return &interaction.RelationshipResult{
		Category:   interaction.StrongRelatedness,
		Confidence: 0.85,
		Similarity: st.maxSimilarity(),
	}
}

func (c *Classifier) ruleModerateRelatedness(ctx context.Context, st *state) *interaction.RelationshipResult {
	max := st.maxSimilarity()
	if max < c.config.ModerateThreshold || max >= c.config.DirectThreshold {
		return nil
	}
	return &interaction.RelationshipResult{
		Category:   interaction.ModerateRelatedness,
		Confidence: 0.75,
		Similarity: max,
	}
}

func (c *Classifier) ruleClarification(ctx context.Context, st *state) *interaction.RelationshipResult {
	if st.maxSimilarity() < c.config.ClarificationThreshold {
		return nil
	}
	if !containsCue(st.input, c.config.ClarificationCues) {
		return nil
	}
	return &interaction.RelationshipResult{
		Category:   interaction.Clarification,
		Confidence: 0.8,
		Similarity: st.maxSimilarity(),
	}
}

func (c *Classifier) rulePatternReinforcement(ctx context.Context, st *state) *interaction.RelationshipResult {
	theme, confidence, ok := pattern.Match(st.req.Input, st.req.Patterns)
	if !ok {
		return nil
	}
	return &interaction.RelationshipResult{
		Category:   interaction.PatternReinforcement,
		Confidence: confidence,
		Similarity: st.maxSimilarity(),
		PatternID:  theme.Token,
	}
}

// computeSimilarities fills the shared similarity facts once; later
// rules reuse them.
func (st *state) computeSimilarities(ctx context.Context, scorer similarity.Scorer) {
	if st.similaritiesComputed {
		return
	}
	st.similaritiesComputed = true

	if st.req.CurrentSentence != "" {
		st.currentSimilarity = scorer.Score(ctx, st.req.CurrentSentence, st.req.Input)
	}
	for _, turn := range st.req.RecentTurns {
		if score := scorer.Score(ctx, turn.Input, st.req.Input); score > st.recentSimilarity {
			st.recentSimilarity = score
		}
	}
}

func (st *state) maxSimilarity() float64 {
	if !st.similaritiesComputed {
		return 0
	}
	if st.recentSimilarity > st.currentSimilarity {
		return st.recentSimilarity
	}
	return st.currentSimilarity
}

func containsCue(lowercased string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(lowercased, cue) {
			return true
		}
	}
	return false
}

// sharedContentTokens counts non-stop-word tokens common to both texts.
func sharedContentTokens(a, b string) int {
	tokens := make(map[string]bool)
	for _, token := range interaction.Tokenize(a, 2) {
		if !interaction.IsStopWord(token) {
			tokens[token] = true
		}
	}
	shared := 0
	for _, token := range interaction.Tokenize(b, 2) {
		if tokens[token] && !interaction.IsStopWord(token) {
			shared++
			tokens[token] = false
		}
	}
	return shared
}
