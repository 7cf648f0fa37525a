package similarity

import (
	"context"

	"github.com/telltail/conmem/pkg/embed"
	"github.com/telltail/conmem/pkg/log"
)

// Engine is the dual-strategy similarity engine. The vector strategy is
// preferred; the breaker decides at call time whether it may run, and
// any vector failure falls back to the lexical strategy for that call.
// State (cache, breaker counters) is instance-owned so engines do not
// interfere across tests or tenants.
type Engine struct {
	lexical *Lexical
	vector  *Vector
	breaker *Breaker
}

// NewEngine creates an engine. A nil provider yields a lexical-only
// engine, which is valid and never degraded.
func NewEngine(provider embed.Provider, cfg Config) *Engine {
	e := &Engine{
		lexical: NewLexical(),
	}
	if provider != nil {
		e.vector = NewVector(provider, cfg.CacheSize, cfg.ProviderTimeout)
		e.breaker = NewBreaker(cfg.FailureThreshold, cfg.Cooldown)
	}
	return e
}

// Score implements Scorer. It never fails; the worst case is lexical accuracy.
func (e *Engine) Score(ctx context.Context, a, b string) float64 {
	if e.vector != nil && e.breaker.Allow() {
		score, err := e.vector.Score(ctx, a, b)
		if err == nil {
			e.breaker.RecordSuccess()
			return score
		}

		e.breaker.RecordFailure()
		if embed.IsQuota(err) {
			// Quota exhaustion is expected degraded mode, not a fault.
			log.DebugContext(ctx, "Embedding provider quota exhausted, using lexical similarity",
				"reason", embed.ReasonOf(err))
		} else {
			log.WarnContext(ctx, "Embedding provider failed, using lexical similarity",
				"reason", embed.ReasonOf(err),
				"error", err)
		}
	}

	score, _ := e.lexical.Score(ctx, a, b)
	return score
}

// Degraded reports whether a configured provider is currently being
// skipped because the breaker is open.
func (e *Engine) Degraded() bool {
	return e.breaker != nil && e.breaker.Open()
}

// CachedEmbedding exposes the vector cache for retrieval's semantic
// strategy; ok is false for lexical-only engines or cache misses.
func (e *Engine) CachedEmbedding(text string) ([]float32, bool) {
	if e.vector == nil {
		return nil, false
	}
	return e.vector.CachedEmbedding(text)
}

// Embedding fetches (and caches) the embedding for text, honoring the
// breaker. It returns false when the provider is unavailable.
func (e *Engine) Embedding(ctx context.Context, text string) ([]float32, bool) {
	if e.vector == nil || !e.breaker.Allow() {
		return nil, false
	}
	vec, err := e.vector.Embedding(ctx, text)
	if err != nil {
		e.breaker.RecordFailure()
		return nil, false
	}
	e.breaker.RecordSuccess()
	return vec, true
}

var _ Scorer = (*Engine)(nil)
