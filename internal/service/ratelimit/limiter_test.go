package ratelimit

import (
	"testing"
	"time"
)

func TestAllowConsumesTokens(t *testing.T) {
	l := New()

	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3, 0) {
			t.Fatalf("request %d should pass", i)
		}
	}
	if l.Allow("k", 3, 0) {
		t.Fatal("bucket should be empty")
	}
}

func TestAllowRefills(t *testing.T) {
	l := New()

	if !l.Allow("k", 1, 1000) {
		t.Fatal("first request should pass")
	}
	if l.Allow("k", 1, 1000) {
		t.Fatal("second immediate request should fail")
	}
	time.Sleep(5 * time.Millisecond)
	if !l.Allow("k", 1, 1000) {
		t.Fatal("request after refill should pass")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()

	if !l.Allow("a", 1, 0) {
		t.Fatal("a should pass")
	}
	if !l.Allow("b", 1, 0) {
		t.Fatal("b should pass")
	}
	if l.Allow("a", 1, 0) {
		t.Fatal("a should be exhausted")
	}
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	l := New()
	l.Allow("old", 1, 0)

	// age the bucket and force the next Allow to sweep
	l.mu.Lock()
	l.m["old"].last = time.Now().Add(-idleAfter - time.Second)
	l.lastSweep = time.Now().Add(-sweepEvery - time.Second)
	l.mu.Unlock()

	l.Allow("fresh", 1, 0)

	l.mu.Lock()
	_, ok := l.m["old"]
	l.mu.Unlock()
	if ok {
		t.Fatal("idle bucket should be swept")
	}
	if l.Len() != 1 {
		t.Fatalf("got %d buckets, want 1", l.Len())
	}
}
