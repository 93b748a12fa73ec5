package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes redelivery delays with exponential growth and jitter.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	Jitter    float64
}

// DefaultBackoff returns the delay schedule used for webhook redelivery.
func DefaultBackoff() *Backoff {
	return &Backoff{
		BaseDelay: 1 * time.Second,
		MaxDelay:  2 * time.Minute,
		Factor:    2.0,
		Jitter:    0.2,
	}
}

// NextDelay returns the pause before the next delivery attempt. attempt is
// the number of deliveries already made, so attempt 1 yields BaseDelay.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.BaseDelay) * math.Pow(b.Factor, float64(attempt-1))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	if b.Jitter > 0 {
		jitterRange := delay * b.Jitter
		delay += (rand.Float64() * 2 * jitterRange) - jitterRange
	}

	if delay < float64(100*time.Millisecond) {
		delay = float64(100 * time.Millisecond)
	}

	return time.Duration(delay)
}
