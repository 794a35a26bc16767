package cache

import (
	"testing"
	"time"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache()
	c.Set("k", "v", time.Minute)

	v, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if v.(string) != "v" {
		t.Fatalf("got %v, want v", v)
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache()
	c.Set("k", "v", time.Nanosecond)
	time.Sleep(2 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewTTLCache()
	c.Set("k", "v", 0)
	time.Sleep(2 * time.Millisecond)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected zero-ttl entry to stay")
	}
}

func TestTTLCacheBytes(t *testing.T) {
	c := NewTTLCache()
	if err := c.SetBytes("k", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}

	b, ok, err := c.GetBytes("k")
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(b) != "payload" {
		t.Fatalf("got %q, want payload", b)
	}

	// non-bytes values are not visible through the bytes API
	c.Set("s", "text", time.Minute)
	if _, ok, _ := c.GetBytes("s"); ok {
		t.Fatal("expected miss for non-bytes value")
	}
}

func TestTTLCacheMiss(t *testing.T) {
	c := NewTTLCache()
	if _, ok := c.Get("absent"); ok {
		t.Fatal("expected miss")
	}
	if _, ok, err := c.GetBytes("absent"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}
