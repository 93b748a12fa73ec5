package breaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a synthetic clock so tests control the cool-down window.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(clk *fakeClock) *CircuitBreaker {
	return New(Config{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		Now:              clk.Now,
	})
}

func TestOpensAfterThresholdConsecutiveFailures(t *testing.T) {
	clk := newFakeClock()
	b := newTestBreaker(clk)

	for i := 0; i < 4; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("failure %d: expected Allow to pass while closed, got %v", i, err)
		}
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after 4 failures, got %v", b.State())
	}

	b.RecordFailure() // fifth consecutive failure
	if b.State() != StateOpen {
		t.Fatalf("expected open after 5 failures, got %v", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clk := newFakeClock()
	b := newTestBreaker(clk)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()

	// The count restarted at zero, so four more failures must not open it.
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open on fifth consecutive failure, got %v", b.State())
	}
}

func TestOpenRejectsUntilCoolDownElapses(t *testing.T) {
	clk := newFakeClock()
	b := newTestBreaker(clk)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	for i := 0; i < 3; i++ {
		if err := b.Allow(); !errors.Is(err, ErrOpen) {
			t.Fatalf("expected ErrOpen while open, got %v", err)
		}
	}

	clk.Advance(29 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen before cool-down elapsed, got %v", err)
	}

	clk.Advance(2 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe admission after cool-down, got %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open, got %v", b.State())
	}

	// The probe slot is taken; everyone else keeps failing fast.
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen while probe in flight, got %v", err)
	}
}

func TestExactlyOneProbeUnderConcurrentAllow(t *testing.T) {
	clk := newFakeClock()
	b := newTestBreaker(clk)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clk.Advance(31 * time.Second)

	const callers = 32
	var allowed atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if b.Allow() == nil {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := allowed.Load(); got != 1 {
		t.Errorf("expected exactly 1 admitted probe, got %d", got)
	}
	if b.State() != StateHalfOpen {
		t.Errorf("expected half_open, got %v", b.State())
	}
}

func TestProbeSuccessClosesBreaker(t *testing.T) {
	clk := newFakeClock()
	b := newTestBreaker(clk)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clk.Advance(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe admission failed: %v", err)
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe success, got %v", b.State())
	}

	// Failure count reset along with the close.
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after 4 failures post-recovery, got %v", b.State())
	}
}

func TestProbeFailureReopensWithFreshCoolDown(t *testing.T) {
	clk := newFakeClock()
	b := newTestBreaker(clk)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clk.Advance(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe admission failed: %v", err)
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open after probe failure, got %v", b.State())
	}

	// opened-at was refreshed: just under a full window still rejects.
	clk.Advance(29 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen inside refreshed cool-down, got %v", err)
	}

	clk.Advance(2 * time.Second)
	if err := b.Allow(); err != nil {
		t.Errorf("expected probe admission after refreshed cool-down, got %v", err)
	}
}

func TestStragglerOutcomesWhileOpenAreIgnored(t *testing.T) {
	clk := newFakeClock()
	b := newTestBreaker(clk)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	// Outcomes from attempts admitted before the breaker opened.
	b.RecordSuccess()
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}

	// And they did not disturb the cool-down bookkeeping.
	clk.Advance(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Errorf("expected probe admission after cool-down, got %v", err)
	}
}

func TestDefaultsApplied(t *testing.T) {
	b := New(Config{})

	for i := 0; i < DefaultFailureThreshold-1; i++ {
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed below default threshold, got %v", b.State())
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("expected open at default threshold, got %v", b.State())
	}
}
