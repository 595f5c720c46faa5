package app

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy computes the delay before retry number n of a notification. Delays grow
// exponentially from Initial by Multiplier and are capped at Max. No jitter is applied, so the
// delay never decreases as n grows.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff is used when configuration supplies nothing.
var DefaultBackoff = BackoffPolicy{Initial: time.Minute, Max: 6 * time.Hour, Multiplier: 2}

// Delay returns the wait after the retryCount-th failure (retryCount >= 1).
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Initial
	bo.MaxInterval = p.Max
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	var d time.Duration
	for i := 0; i < retryCount; i++ {
		d = bo.NextBackOff()
		if d >= p.Max {
			return p.Max
		}
	}
	return d
}

// NextAttempt returns when a task that has just failed for the retryCount-th time becomes due.
func (p BackoffPolicy) NextAttempt(now time.Time, retryCount int) time.Time {
	return now.Add(p.Delay(retryCount))
}
