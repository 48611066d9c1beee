// Package ratelimit paces outbound remote collection fetches with a token
// bucket backed by golang.org/x/time/rate. It complements the scheduler's
// concurrency bound: the scheduler limits how many fetches overlap, the
// limiter limits how many start per second. On the serving side the remote
// package uses it to shed List calls.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter. A nil *Limiter never blocks.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps fetches per second with the
// given burst size.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), max(burst, 1))}
}

// Allow reports whether a fetch may start right now without waiting.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.lim.Allow()
}

// Wait blocks until a fetch may start or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.lim.Wait(ctx)
}
