package schedule

import (
	"math/rand"
	"time"
)

// Jitter draws a uniform random delay from [minSeconds, maxSeconds].
// The rng is injected so tests can be deterministic. A nil rng or a
// degenerate range yields the minimum.
func Jitter(rng *rand.Rand, minSeconds, maxSeconds int) time.Duration {
	if minSeconds < 0 {
		minSeconds = 0
	}
	if maxSeconds <= minSeconds || rng == nil {
		return time.Duration(minSeconds) * time.Second
	}
	span := maxSeconds - minSeconds + 1
	return time.Duration(minSeconds+rng.Intn(span)) * time.Second
}

// NextActionAt computes when a step becomes due: now plus the step's
// configured wait plus humanized jitter.
func NextActionAt(now time.Time, wait time.Duration, rng *rand.Rand, minSeconds, maxSeconds int) time.Time {
	return now.Add(wait).Add(Jitter(rng, minSeconds, maxSeconds))
}

const (
	backoffBase = 30 * time.Second
	backoffCap  = 1 * time.Hour
)

// Backoff returns the exponential retry delay for the given attempt
// number (1-based). Attempt 1 waits 30s, doubling up to a 1h ceiling.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
