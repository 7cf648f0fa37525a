package similarity

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/telltail/conmem/pkg/embed"
)

var errShortResponse = errors.New("provider returned fewer embeddings than requested")

// Vector scores text pairs by cosine similarity of provider embeddings.
// Embeddings are cached by a content hash of each text's normalized
// prefix; only successful provider calls populate the cache.
type Vector struct {
	provider embed.Provider
	cache    *embeddingCache
	timeout  time.Duration
}

// NewVector creates the vector strategy around a provider.
func NewVector(provider embed.Provider, cacheSize int, timeout time.Duration) *Vector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Vector{
		provider: provider,
		cache:    newEmbeddingCache(cacheSize),
		timeout:  timeout,
	}
}

// Name implements Strategy.
func (v *Vector) Name() string { return "vector" }

// Score implements Strategy. A single batched provider call covers
// whichever of the two texts is not already cached.
func (v *Vector) Score(ctx context.Context, a, b string) (float64, error) {
	keyA, keyB := cacheKey(a), cacheKey(b)

	vecA, okA := v.cache.get(keyA)
	vecB, okB := v.cache.get(keyB)

	var missingTexts []string
	var missingKeys []string
	if !okA {
		missingTexts = append(missingTexts, a)
		missingKeys = append(missingKeys, keyA)
	}
	if !okB && keyB != keyA {
		missingTexts = append(missingTexts, b)
		missingKeys = append(missingKeys, keyB)
	}

	if len(missingTexts) > 0 {
		callCtx, cancel := context.WithTimeout(ctx, v.timeout)
		defer cancel()

		vecs, err := v.provider.Embed(callCtx, missingTexts)
		if err != nil {
			return 0, err
		}
		if len(vecs) != len(missingTexts) {
			return 0, embed.NewProviderError(embed.ReasonTransient, errShortResponse)
		}
		for i, key := range missingKeys {
			v.cache.put(key, vecs[i])
		}

		vecA, _ = v.cache.get(keyA)
		vecB, _ = v.cache.get(keyB)
	}

	return clamp01(cosine(vecA, vecB)), nil
}

// CachedEmbedding returns the cached embedding for text, if present.
func (v *Vector) CachedEmbedding(text string) ([]float32, bool) {
	return v.cache.get(cacheKey(text))
}

// Embedding returns the embedding for text, fetching and caching it on miss.
func (v *Vector) Embedding(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := v.cache.get(key); ok {
		return vec, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	vecs, err := v.provider.Embed(callCtx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, embed.NewProviderError(embed.ReasonTransient, errShortResponse)
	}
	v.cache.put(key, vecs[0])
	return vecs[0], nil
}

// cosine computes cosine similarity between two vectors, returning 0
// for mismatched or zero-magnitude inputs.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

var _ Strategy = (*Vector)(nil)
