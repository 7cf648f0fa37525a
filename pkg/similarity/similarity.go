// Package similarity computes a 0-1 relatedness score between two text
// spans. Two interchangeable strategies are provided: a vector strategy
// backed by an external embedding provider and a lexical token-overlap
// strategy. The Engine selects between them at call time based on
// circuit-breaker state, so provider outages degrade accuracy rather
// than availability.
package similarity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Scorer is the read contract consumed by the classifier and retriever.
type Scorer interface {
	// Score returns the relatedness of a and b in [0,1]. It never fails:
	// provider problems fall back to the lexical strategy internally.
	Score(ctx context.Context, a, b string) float64
}

// Strategy is one concrete way of scoring a text pair.
type Strategy interface {
	Name() string
	Score(ctx context.Context, a, b string) (float64, error)
}

// Config holds the tunables for the dual-strategy engine.
type Config struct {
	// FailureThreshold is the number of consecutive provider failures
	// that opens the circuit breaker.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before the provider
	// is probed again.
	Cooldown time.Duration

	// CacheSize bounds the embedding cache (entries, FIFO eviction).
	CacheSize int

	// ProviderTimeout bounds a single embedding call.
	ProviderTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
		CacheSize:        1024,
		ProviderTimeout:  10 * time.Second,
	}
}

// normalizedPrefixLen is how many normalized characters feed the cache key.
const normalizedPrefixLen = 100

// cacheKey hashes the first normalizedPrefixLen characters of the
// lowercased, whitespace-collapsed text. Texts that agree on that
// prefix share a cache slot.
func cacheKey(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if len(normalized) > normalizedPrefixLen {
		normalized = normalized[:normalizedPrefixLen]
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// clamp01 bounds a score to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
