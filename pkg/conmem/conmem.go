// Package conmem is the main facade for the ConMem library. One
// inbound turn flows through ProcessTurn, which classifies how the
// turn relates to prior discourse and retrieves supporting history;
// the accepted turn is written back through CommitTurn once the caller
// has generated its response.
package conmem

import (
	"context"
	"io"
	"strings"

	"github.com/telltail/conmem/pkg/classify"
	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/memstore"
	"github.com/telltail/conmem/pkg/pattern"
	"github.com/telltail/conmem/pkg/retrieval"
	"github.com/telltail/conmem/pkg/scripting"
	"github.com/telltail/conmem/pkg/session"
	"github.com/telltail/conmem/pkg/similarity"
)

// ContinuityHints carry advisory signals for the response generator.
type ContinuityHints struct {
	// HistoryUnavailable is set when the memory store could not be
	// read this turn and the classification is degraded.
	HistoryUnavailable bool `json:"history_unavailable"`

	// DegradedSimilarity is set when the similarity engine is running
	// on the lexical fallback.
	DegradedSimilarity bool `json:"degraded_similarity"`

	// ResumptionTargetID names the prior turn a resumption points at.
	ResumptionTargetID string `json:"resumption_target_id,omitempty"`

	// ActiveTopics are the topic tokens extracted from the input.
	ActiveTopics []string `json:"active_topics,omitempty"`

	// Transition is the phrasing label chosen for the category.
	Transition string `json:"transition,omitempty"`
}

// ContextPackage is what the response generator receives for one turn.
type ContextPackage struct {
	Relationship *interaction.RelationshipResult `json:"relationship"`
	Retrieved    []*interaction.Interaction      `json:"retrieved"`
	Patterns     *pattern.Set                    `json:"patterns,omitempty"`
	Hints        ContinuityHints                 `json:"hints"`

	// previousTurnID links the committed turn to its predecessor.
	previousTurnID string
}

// ConMemClient is the main facade interface for the ConMem library.
type ConMemClient interface {
	// ProcessTurn classifies the new input against session history and
	// retrieves supporting context. It never fails on degraded
	// dependencies; only invalid input or a missing session context
	// produce an error.
	ProcessTurn(ctx context.Context, input string) (*ContextPackage, error)

	// CommitTurn writes the accepted turn back into the memory store
	// after the caller has generated its response.
	CommitTurn(ctx context.Context, input, response string, pkg *ContextPackage) (string, error)

	// Close releases resources held by the client.
	Close() error
}

// Config contains configuration options for the client.
type Config struct {
	// RecentWindow is how many recent turns the classifier inspects.
	RecentWindow int

	// HistoryWindow bounds the session history loaded per turn.
	HistoryWindow int

	// ResumptionLookback is how far into history resumption targets
	// are sought.
	ResumptionLookback int

	// RetrievalLimit is the fused result count per turn.
	RetrievalLimit int

	// Weights are the retrieval fusion weights.
	Weights retrieval.Weights
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		RecentWindow:       5,
		HistoryWindow:      1000,
		ResumptionLookback: 20,
		RetrievalLimit:     10,
		Weights:            retrieval.DefaultWeights(),
	}
}

// ConMemClientImpl is the implementation of the ConMemClient interface.
type ConMemClientImpl struct {
	store        memstore.Store
	classifier   *classify.Classifier
	detector     *pattern.Detector
	orchestrator *retrieval.Orchestrator
	engine       *similarity.Engine
	index        memstore.VectorIndex
	scriptEngine scripting.Engine
	config       Config
}

// NewConMem creates a new client with the specified dependencies.
// index and scriptEngine may be nil.
func NewConMem(
	store memstore.Store,
	classifier *classify.Classifier,
	detector *pattern.Detector,
	orchestrator *retrieval.Orchestrator,
	engine *similarity.Engine,
	index memstore.VectorIndex,
	scriptEngine scripting.Engine,
	config Config,
) *ConMemClientImpl {
	defaults := DefaultConfig()
	if config.RecentWindow <= 0 {
		config.RecentWindow = defaults.RecentWindow
	}
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = defaults.HistoryWindow
	}
	if config.ResumptionLookback <= 0 {
		config.ResumptionLookback = defaults.ResumptionLookback
	}
	if config.RetrievalLimit <= 0 {
		config.RetrievalLimit = defaults.RetrievalLimit
	}
	if config.Weights == (retrieval.Weights{}) {
		config.Weights = defaults.Weights
	}

	client := &ConMemClientImpl{
		store:        store,
		classifier:   classifier,
		detector:     detector,
		orchestrator: orchestrator,
		engine:       engine,
		index:        index,
		scriptEngine: scriptEngine,
		config:       config,
	}

	log.Debug("ConMem client initialized",
		"recent_window", config.RecentWindow,
		"history_window", config.HistoryWindow,
		"retrieval_limit", config.RetrievalLimit,
	)

	return client
}

// ProcessTurn implements the ConMemClient interface.
func (c *ConMemClientImpl) ProcessTurn(ctx context.Context, input string) (*ContextPackage, error) {
	sessionCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return nil, session.ErrMissingSessionContext
	}
	if strings.TrimSpace(input) == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "turn input must not be empty")
	}

	logger := log.WithSessionContext(log.FromContext(ctx), sessionCtx)
	logger.DebugContext(ctx, "Processing turn", "input_length", len(input))

	input = c.callBeforeClassifyHook(ctx, input)

	history, err := c.store.QueryBySession(ctx, sessionCtx.SessionID, c.config.HistoryWindow)
	if err != nil {
		// Store unavailability degrades to a first-interaction result
		// instead of failing the turn.
		logger.ErrorContext(ctx, "Memory store unavailable, degrading turn", "error", err)
		result := &interaction.RelationshipResult{
			Category:   interaction.FirstInteraction,
			Confidence: 1.0,
			Transition: interaction.TransitionFor(interaction.FirstInteraction, input),
		}
		return &ContextPackage{
			Relationship: result,
			Hints: ContinuityHints{
				HistoryUnavailable: true,
				ActiveTopics:       interaction.ExtractTopics(input, 0),
				Transition:         result.Transition,
			},
		}, nil
	}

	var patterns *pattern.Set
	if c.detector != nil && len(history) > 0 {
		patterns = c.detector.Detect(ctx, history)
		patterns = c.callFilterThemesHook(ctx, patterns)
	}

	req := &classify.Request{
		Input:         input,
		RecentTurns:   tail(history, c.config.RecentWindow),
		LookbackTurns: tail(history, c.config.ResumptionLookback),
		IsFirst:       len(history) == 0,
		Patterns:      patterns,
	}
	if len(history) > 0 {
		req.CurrentSentence = history[len(history)-1].Input
	}
	result := c.classifier.Classify(ctx, req)

	retrieved, err := c.orchestrator.Retrieve(ctx, retrieval.Query{
		Text:    input,
		SeedIDs: c.seedIDs(result, patterns),
		Limit:   c.config.RetrievalLimit,
		Weights: c.config.Weights,
	})
	if err != nil {
		logger.WarnContext(ctx, "Retrieval failed, continuing without history context", "error", err)
		retrieved = nil
	}
	retrieved = c.callAfterRetrieveHook(ctx, retrieved)

	pkg := &ContextPackage{
		Relationship: result,
		Retrieved:    retrieved,
		Patterns:     patterns,
		Hints: ContinuityHints{
			DegradedSimilarity: c.engine != nil && c.engine.Degraded(),
			ResumptionTargetID: result.ResumptionTargetID,
			ActiveTopics:       interaction.ExtractTopics(input, 0),
			Transition:         result.Transition,
		},
	}
	if len(history) > 0 {
		pkg.previousTurnID = history[len(history)-1].ID
	}

	logger.DebugContext(ctx, "Turn processed",
		"category", result.Category,
		"confidence", result.Confidence,
		"retrieved", len(retrieved),
	)
	return pkg, nil
}

// CommitTurn implements the ConMemClient interface.
func (c *ConMemClientImpl) CommitTurn(ctx context.Context, input, response string, pkg *ContextPackage) (string, error) {
	sessionCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return "", session.ErrMissingSessionContext
	}
	if strings.TrimSpace(input) == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "turn input must not be empty")
	}
	if pkg == nil {
		return "", errors.Wrap(errors.ErrInvalidInput, "context package is required")
	}

	record := &interaction.Interaction{
		SessionID:    sessionCtx.SessionID,
		UserID:       sessionCtx.UserID,
		Input:        input,
		Response:     response,
		Relationship: pkg.Relationship,
		PreviousID:   pkg.previousTurnID,
	}
	for _, retrieved := range pkg.Retrieved {
		record.RelatedIDs = append(record.RelatedIDs, retrieved.ID)
	}

	if c.engine != nil {
		if embedding, ok := c.engine.Embedding(ctx, input); ok {
			record.InputEmbedding = embedding
		}
	}

	id, err := c.store.Append(ctx, record)
	if err != nil {
		return "", errors.Wrap(err, "failed to commit turn")
	}
	record.ID = id

	if c.index != nil && len(record.InputEmbedding) > 0 {
		if err := c.index.Add(ctx, record); err != nil {
			// The turn is committed; a missing index entry only costs
			// semantic recall.
			log.WarnContext(ctx, "Failed to index committed turn", "id", id, "error", err)
		}
	}

	return id, nil
}

// History returns the most recent limit turns of the session in the
// ambient session context, oldest first. It is a convenience for
// inspection tooling and is not part of the ConMemClient interface.
func (c *ConMemClientImpl) History(ctx context.Context, limit int) ([]*interaction.Interaction, error) {
	sessionCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return nil, session.ErrMissingSessionContext
	}
	return c.store.QueryBySession(ctx, sessionCtx.SessionID, limit)
}

// Close releases the scripting engine and the store's archive tier.
func (c *ConMemClientImpl) Close() error {
	var firstErr error
	if c.scriptEngine != nil {
		if err := c.scriptEngine.Close(); err != nil {
			firstErr = err
		}
	}
	if closer, ok := c.store.(io.Closer); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// seedIDs collects the interaction ids already linked to this turn for
// the relationship-graph retrieval strategy.
func (c *ConMemClientImpl) seedIDs(result *interaction.RelationshipResult, patterns *pattern.Set) []string {
	var seeds []string
	if result.ResumptionTargetID != "" {
		seeds = append(seeds, result.ResumptionTargetID)
	}
	if result.PatternID != "" && patterns != nil {
		for _, theme := range patterns.Themes {
			if theme.Token == result.PatternID {
				seeds = append(seeds, theme.InteractionIDs...)
				break
			}
		}
	}
	return seeds
}

func tail(records []*interaction.Interaction, n int) []*interaction.Interaction {
	if n <= 0 || len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}

var _ ConMemClient = (*ConMemClientImpl)(nil)
