package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestBreaker(clock *fakeClock, opts ...Option) *Breaker {
	return New("pretix", append([]Option{WithClock(clock.Now), WithCooldown(time.Minute)}, opts...)...)
}

func TestBreakerStartsClosed(t *testing.T) {
	b := New("pretix")
	assert.Equal(t, "pretix", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.True(t, b.Allow())
}

func TestBreakerTransitions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 8, 6, 0, 0, 0, time.UTC)}

	t.Run("consecutive failures open at the threshold", func(t *testing.T) {
		b := newTestBreaker(clock, WithFailureThreshold(2))

		unavailable, change := b.RecordFailure()
		assert.False(t, unavailable)
		assert.Equal(t, StateChange{}, change)

		unavailable, change = b.RecordFailure()
		assert.True(t, unavailable)
		assert.True(t, change.Opened)
		assert.Equal(t, "open", b.State().String())
	})

	t.Run("a success between failures restarts the count", func(t *testing.T) {
		b := newTestBreaker(clock, WithFailureThreshold(2))
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		assert.False(t, b.IsOpen())
	})

	t.Run("failing while open reports unavailable without a new transition", func(t *testing.T) {
		b := newTestBreaker(clock, WithFailureThreshold(1))
		b.RecordFailure()
		unavailable, change := b.RecordFailure()
		assert.True(t, unavailable)
		assert.False(t, change.Opened)
	})

	t.Run("closing needs the configured run of successes", func(t *testing.T) {
		b := newTestBreaker(clock, WithFailureThreshold(1), WithSuccessThreshold(2))
		b.RecordFailure()

		ok, change := b.RecordSuccess()
		assert.False(t, ok)
		assert.False(t, change.Closed)

		b.RecordFailure()
		ok, _ = b.RecordSuccess()
		require.False(t, ok, "failure while open restarts the success run")

		ok, change = b.RecordSuccess()
		assert.True(t, ok)
		assert.True(t, change.Closed)
		assert.False(t, b.IsOpen())
	})

	t.Run("reset closes immediately", func(t *testing.T) {
		b := newTestBreaker(clock, WithFailureThreshold(1))
		b.RecordFailure()
		b.Reset()
		assert.Equal(t, StateClosed, b.State())
		assert.True(t, b.Allow())
	})
}

func TestBreakerAllowsTrialAfterCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 8, 6, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clock, WithFailureThreshold(1))

	b.RecordFailure()
	assert.False(t, b.Allow())

	clock.now = clock.now.Add(59 * time.Second)
	assert.False(t, b.Allow())

	clock.now = clock.now.Add(time.Second)
	assert.True(t, b.Allow())
	assert.True(t, b.IsOpen(), "allowing a trial call does not close the breaker")

	b.RecordFailure()
	assert.False(t, b.Allow(), "a failed trial restarts the cooldown")
}
