package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker refuses attempts.
var ErrOpen = errors.New("circuit breaker is open")

// State captures circuit breaker states.
type State int

const (
	// StateClosed indicates normal operation.
	StateClosed State = iota
	// StateOpen indicates the breaker is rejecting attempts.
	StateOpen
	// StateHalfOpen indicates a single trial attempt is in flight.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultCoolDown         = 30 * time.Second
)

type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold int
	// CoolDown is how long the breaker stays open before one probe
	// attempt is admitted.
	CoolDown time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// CircuitBreaker tracks downstream health and gates forwarding attempts.
// All methods are safe for concurrent use; every transition happens under
// one mutex, so each caller observes a consistent state and its own
// transition is complete before the call returns.
type CircuitBreaker struct {
	failureThreshold int
	coolDown         time.Duration
	now              func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

func New(cfg Config) *CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	coolDown := cfg.CoolDown
	if coolDown <= 0 {
		coolDown = DefaultCoolDown
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &CircuitBreaker{
		failureThreshold: threshold,
		coolDown:         coolDown,
		now:              now,
		state:            StateClosed,
	}
}

// Allow reports whether a forwarding attempt may proceed. It returns nil
// when the attempt is admitted and ErrOpen when the caller must fail fast.
// When the cool-down window has elapsed, exactly one caller is admitted as
// the half-open probe; concurrent callers keep getting ErrOpen until the
// probe outcome is recorded.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) > b.coolDown {
			b.state = StateHalfOpen
			return nil
		}
		return ErrOpen
	default: // StateHalfOpen: the probe slot is taken
		return ErrOpen
	}
}

// RecordSuccess reports a successful attempt. It resets the consecutive
// failure count and, after a successful probe, closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.state = StateClosed
		b.failures = 0
		b.openedAt = time.Time{}
	case StateOpen:
		// Straggler admitted before the breaker opened; the probe cycle
		// governs recovery.
	}
}

// RecordFailure reports a failed attempt. Reaching the threshold while
// closed opens the breaker; a failed probe re-opens it with a fresh
// cool-down window.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
	case StateOpen:
		// Straggler; see RecordSuccess.
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
