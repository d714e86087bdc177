package inventory

import (
	"errors"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit breaker is open")

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Clock supplies the breaker's notion of time so transitions can be driven
// deterministically in tests.
type Clock func() time.Time

type BreakerSettings struct {
	// Window is the length of the rolling window the failure rate is
	// computed over.
	Window time.Duration
	// MinCalls is the minimum number of recorded calls inside the window
	// before the failure rate is evaluated at all.
	MinCalls int
	// FailureRate in [0,1]; at or above it the breaker opens.
	FailureRate float64
	// OpenTimeout is the cool-down before an open breaker lets trial
	// calls through.
	OpenTimeout time.Duration
	// HalfOpenMaxCalls bounds the number of concurrent trial calls.
	HalfOpenMaxCalls int
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Window:           10 * time.Second,
		MinCalls:         5,
		FailureRate:      0.5,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

type outcome struct {
	at      time.Time
	failure bool
}

// Breaker is an explicit finite-state circuit breaker with a rolling
// failure window. One instance guards one downstream dependency and is
// injected into its client.
type Breaker struct {
	settings BreakerSettings
	clock    Clock

	mu       sync.Mutex
	state    BreakerState
	outcomes []outcome
	openedAt time.Time
	trials   int
}

func NewBreaker(settings BreakerSettings, clock Clock) *Breaker {
	if clock == nil {
		clock = time.Now
	}
	if settings.HalfOpenMaxCalls <= 0 {
		settings.HalfOpenMaxCalls = 1
	}
	return &Breaker{settings: settings, clock: clock, state: StateClosed}
}

// Allow reports whether a call may proceed. It returns ErrOpen when the
// breaker short-circuits; in half-open state it reserves one of the bounded
// trial slots for the caller.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.clock().Sub(b.openedAt) < b.settings.OpenTimeout {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.trials = 0
		fallthrough
	default: // StateHalfOpen
		if b.trials >= b.settings.HalfOpenMaxCalls {
			return ErrOpen
		}
		b.trials++
		return nil
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		// A trial call succeeded; the dependency recovered.
		b.state = StateClosed
		b.outcomes = nil
		return
	}
	b.record(false)
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.open()
		return
	}
	b.record(true)
	if b.failureRateExceeded() {
		b.open()
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.clock()
	b.outcomes = nil
}

func (b *Breaker) record(failure bool) {
	now := b.clock()
	b.outcomes = append(b.outcomes, outcome{at: now, failure: failure})
	b.evict(now)
}

func (b *Breaker) evict(now time.Time) {
	cutoff := now.Add(-b.settings.Window)
	kept := b.outcomes[:0]
	for _, o := range b.outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	b.outcomes = kept
}

func (b *Breaker) failureRateExceeded() bool {
	if len(b.outcomes) < b.settings.MinCalls {
		return false
	}
	var failures int
	for _, o := range b.outcomes {
		if o.failure {
			failures++
		}
	}
	rate := float64(failures) / float64(len(b.outcomes))
	return rate >= b.settings.FailureRate
}
