package similarity

import "sync"

// embeddingCache is a bounded FIFO cache from content-hash keys to
// embedding vectors. Only successful provider calls populate it.
type embeddingCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string][]float32
	order   []string // insertion order, oldest first
}

func newEmbeddingCache(maxSize int) *embeddingCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &embeddingCache{
		maxSize: maxSize,
		entries: make(map[string][]float32, maxSize),
	}
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.entries[key]
	return vec, ok
}

func (c *embeddingCache) put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = vec
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = vec
	c.order = append(c.order, key)
}

func (c *embeddingCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
