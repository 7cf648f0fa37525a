package similarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock provides a controllable time source for breaker tests.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(threshold, cooldown)
	b.now = clock.now
	return b, clock
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 5*time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow(), "breaker must stay closed below threshold")
	assert.False(t, b.Open())

	b.RecordFailure()
	assert.False(t, b.Allow(), "breaker must open at exactly threshold failures")
	assert.True(t, b.Open())
}

func TestBreaker_ResetsAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(3, 5*time.Minute)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	assert.False(t, b.Allow())

	clock.advance(4 * time.Minute)
	assert.False(t, b.Allow(), "breaker must stay open inside the cooldown window")

	clock.advance(time.Minute)
	assert.True(t, b.Allow(), "breaker must probe the provider after the cooldown elapses")
	assert.False(t, b.Open())
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b, _ := newTestBreaker(3, 5*time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	// The counter restarted, so two more failures still leave it closed.
	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.False(t, b.Allow())
}

func TestBreaker_DefaultsApplied(t *testing.T) {
	b := NewBreaker(0, 0)
	assert.Equal(t, 3, b.threshold)
	assert.Equal(t, 5*time.Minute, b.cooldown)
}
