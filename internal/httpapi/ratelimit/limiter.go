// Package ratelimit is the token-bucket limiter guarding the mutation
// surface of internal/httpapi (§6): one shared bucket per process, since
// the daemon fronts a single BGP-speaking process rather than a fleet.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate with a RetryAfter helper shaped for
// the §6 error envelope's retry_after_seconds field.
type Limiter struct {
	limiter *rate.Limiter
}

// New builds a limiter allowing eventsPerSecond steady-state with a burst
// capacity of burst. A zero eventsPerSecond disables limiting (Allow always
// true) so dev/test configs can opt out without a branch at every call site.
func New(eventsPerSecond, burst uint32) *Limiter {
	if eventsPerSecond == 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), int(burst))}
}

// Allow reports whether a request may proceed now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// RetryAfterSeconds estimates how long the caller should wait before
// retrying, rounded up to the nearest whole second, with a floor of 1.
func (l *Limiter) RetryAfterSeconds() int {
	r := l.limiter.Reserve()
	if !r.OK() {
		return 1
	}
	delay := r.Delay()
	r.Cancel()
	secs := int(delay / time.Second)
	if delay%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// SetRate reconfigures the bucket in place, used when settings are reloaded.
func (l *Limiter) SetRate(eventsPerSecond, burst uint32) {
	if eventsPerSecond == 0 {
		l.limiter.SetLimit(rate.Inf)
		l.limiter.SetBurst(0)
		return
	}
	l.limiter.SetLimit(rate.Limit(eventsPerSecond))
	l.limiter.SetBurst(int(burst))
}
