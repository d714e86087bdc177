package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker() (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	breaker := NewBreaker(BreakerSettings{
		Window:           10 * time.Second,
		MinCalls:         4,
		FailureRate:      0.5,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 1,
	}, clock.Now)
	return breaker, clock
}

func trip(t *testing.T, breaker *Breaker) {
	t.Helper()
	for i := 0; i < 4; i++ {
		require.NoError(t, breaker.Allow())
		breaker.RecordFailure()
	}
	require.Equal(t, StateOpen, breaker.State())
}

func TestBreakerOpensOnFailureRate(t *testing.T) {
	breaker, _ := newTestBreaker()

	// Three failures are below the MinCalls floor.
	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.Allow())
		breaker.RecordFailure()
	}
	assert.Equal(t, StateClosed, breaker.State())

	require.NoError(t, breaker.Allow())
	breaker.RecordFailure()
	assert.Equal(t, StateOpen, breaker.State())
	assert.ErrorIs(t, breaker.Allow(), ErrOpen)
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	breaker, _ := newTestBreaker()

	for i := 0; i < 6; i++ {
		require.NoError(t, breaker.Allow())
		breaker.RecordSuccess()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, breaker.Allow())
		breaker.RecordFailure()
	}
	// 2 failures out of 8 is a 25% rate.
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenAfterCoolDown(t *testing.T) {
	breaker, clock := newTestBreaker()
	trip(t, breaker)

	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, breaker.Allow(), ErrOpen, "cool-down has not elapsed yet")

	clock.Advance(2 * time.Second)
	require.NoError(t, breaker.Allow(), "a trial call is let through after the cool-down")
	assert.Equal(t, StateHalfOpen, breaker.State())

	// The single trial slot is taken.
	assert.ErrorIs(t, breaker.Allow(), ErrOpen)
}

func TestBreakerClosesOnTrialSuccess(t *testing.T) {
	breaker, clock := newTestBreaker()
	trip(t, breaker)

	clock.Advance(31 * time.Second)
	require.NoError(t, breaker.Allow())
	breaker.RecordSuccess()

	assert.Equal(t, StateClosed, breaker.State())
	assert.NoError(t, breaker.Allow())
}

func TestBreakerReopensOnTrialFailure(t *testing.T) {
	breaker, clock := newTestBreaker()
	trip(t, breaker)

	clock.Advance(31 * time.Second)
	require.NoError(t, breaker.Allow())
	breaker.RecordFailure()

	assert.Equal(t, StateOpen, breaker.State())
	assert.ErrorIs(t, breaker.Allow(), ErrOpen)

	// The cool-down restarts from the trial failure.
	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, breaker.Allow(), ErrOpen)
	clock.Advance(2 * time.Second)
	assert.NoError(t, breaker.Allow())
}

func TestBreakerWindowEvictsOldOutcomes(t *testing.T) {
	breaker, clock := newTestBreaker()

	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.Allow())
		breaker.RecordFailure()
	}

	// Old failures slide out of the window before the rate is evaluated.
	clock.Advance(11 * time.Second)
	require.NoError(t, breaker.Allow())
	breaker.RecordFailure()
	assert.Equal(t, StateClosed, breaker.State())
}
