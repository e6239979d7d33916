// Package ratelimit paces requests to the portal and honours robots.txt.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces every request made through one session.
type Limiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	rps     float64
	burst   int
}

// NewLimiter creates a limiter. A non-positive rate disables pacing.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(toLimit(requestsPerSecond), burst),
		rps:     requestsPerSecond,
		burst:   burst,
	}
}

func toLimit(requestsPerSecond float64) rate.Limit {
	if requestsPerSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(requestsPerSecond)
}

// Wait blocks until a request is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may happen now without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetRate updates the rate limit.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter.SetLimit(toLimit(requestsPerSecond))
	l.limiter.SetBurst(burst)
	l.rps = requestsPerSecond
	l.burst = burst
}

// SlowTo lowers the rate so that consecutive requests are at least delay
// apart. A rate that is already slower is kept.
func (l *Limiter) SlowTo(delay time.Duration) {
	if delay <= 0 {
		return
	}
	perSecond := float64(time.Second) / float64(delay)

	l.mu.RLock()
	current := l.rps
	l.mu.RUnlock()

	if current > 0 && current <= perSecond {
		return
	}
	l.SetRate(perSecond, 1)
}

// Stats returns the current settings.
func (l *Limiter) Stats() LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LimiterStats{
		RequestsPerSecond: l.rps,
		Burst:             l.burst,
		Unlimited:         l.rps <= 0,
	}
}

// LimiterStats contains rate limiter settings.
type LimiterStats struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
	Unlimited         bool    `json:"unlimited"`
}
