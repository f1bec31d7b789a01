package connection

import (
	"math"
	"time"
)

// Backoff computes reconnect delays: Initial * Multiplier^(attempt-1).
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
}

// Delay returns the wait before the given 1-based reconnect attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	return time.Duration(float64(b.Initial) * math.Pow(mult, float64(attempt-1)))
}

// timer is the part of *time.Timer the manager needs.
type timer interface {
	Stop() bool
}

// scheduleFunc runs f after d. Swapped out in tests.
type scheduleFunc func(d time.Duration, f func()) timer

func realSchedule(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}
