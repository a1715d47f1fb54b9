// Package pacing spaces out upstream model calls.
//
// A Limiter guarantees a minimum interval between call initiations across
// every goroutine sharing it. It does not serialize the calls themselves:
// many requests may be in flight at once.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the spacing applied when none is configured.
const DefaultInterval = 10 * time.Millisecond

// Limiter is a fixed-interval gate. A nil Limiter never blocks.
type Limiter struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// New returns a limiter allowing one call initiation per interval.
// An interval <= 0 disables pacing.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until the next initiation slot or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Interval returns the configured spacing (0 when disabled).
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
