package availability

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for retry backoff.
type BackoffConfig struct {
	Initial    time.Duration // First retry delay (default: 200ms)
	Max        time.Duration // Maximum retry delay (default: 2s)
	Multiplier float64       // Growth per attempt (default: 2.0)
	JitterPct  float64       // Jitter as a fraction of delay (default: 0.4 = ±20%)
}

// DefaultBackoffConfig returns the backoff used between segment check retries.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    200 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2.0,
		JitterPct:  0.4,
	}
}

// Backoff yields exponentially growing delays with jitter.
// Not safe for concurrent use; create one per request.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a Backoff. Equal seeds produce equal jitter sequences.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the delay before the next attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without advancing.
func (b *Backoff) Calculate() time.Duration {
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))
	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	// ±(JitterPct/2) of the delay
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Attempts returns how many delays have been handed out.
func (b *Backoff) Attempts() int {
	return b.attempts
}
