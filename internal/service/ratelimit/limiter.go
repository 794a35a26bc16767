package ratelimit

import (
	"sync"
	"time"
)

// Buckets idle longer than idleAfter are dropped during a sweep. Sweeps
// piggyback on Allow calls at most once per sweepEvery.
const (
	idleAfter  = 10 * time.Minute
	sweepEvery = time.Minute
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

type Limiter struct {
	mu        sync.Mutex
	m         map[string]*bucket
	lastSweep time.Time
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*bucket), lastSweep: time.Now()}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > sweepEvery {
		l.sweep(now)
	}

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	// refill
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

// sweep drops buckets that have not been touched recently. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.last) > idleAfter {
			delete(l.m, k)
		}
	}
	l.lastSweep = now
}

// Len reports the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
