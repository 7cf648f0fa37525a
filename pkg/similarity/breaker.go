package similarity

import (
	"sync"
	"time"
)

// Breaker is a failure-counting guard for the embedding provider. After
// threshold consecutive failures it opens for a cooldown window, during
// which the provider is skipped entirely; once the cooldown elapses the
// breaker resets and the provider is probed again. Any success resets
// the failure counter immediately.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	consecutiveFailures int
	openedAt            time.Time

	// now is replaceable for tests.
	now func() time.Time
}

// NewBreaker creates a breaker with the given threshold and cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether the provider may be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consecutiveFailures < b.threshold {
		return true
	}

	if b.now().Sub(b.openedAt) >= b.cooldown {
		// Cooldown elapsed: reset and probe again.
		b.consecutiveFailures = 0
		b.openedAt = time.Time{}
		return true
	}
	return false
}

// RecordFailure counts a provider failure, opening the breaker once the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.consecutiveFailures == b.threshold {
		b.openedAt = b.now()
	}
}

// RecordSuccess resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.openedAt = time.Time{}
}

// Open reports whether the breaker is currently rejecting provider calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consecutiveFailures < b.threshold {
		return false
	}
	return b.now().Sub(b.openedAt) < b.cooldown
}
