package ratelimiter

import (
	"testing"
	"time"
)

func TestNewRejectsInvalidArgs(t *testing.T) {
	if l := New(0, 5, 0); l != nil {
		t.Fatal("expected nil limiter for rps=0")
	}
	if l := New(1, 0, 0); l != nil {
		t.Fatal("expected nil limiter for burst=0")
	}
	var l *MapLimiter
	if !l.Allow(1, time.Now()) {
		t.Fatal("nil limiter must allow")
	}
}

func TestAllowIsPerUser(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	if !l.Allow(1, now) || !l.Allow(1, now) {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow(1, now) {
		t.Fatal("third frame in the same instant should be rejected")
	}
	if !l.Allow(2, now) {
		t.Fatal("other user has its own bucket")
	}
	if !l.Allow(1, now.Add(time.Second)) {
		t.Fatal("bucket should refill after one second")
	}
}

func TestForgetResetsBucket(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.Allow(7, now)
	if l.Allow(7, now) {
		t.Fatal("bucket should be empty")
	}
	l.Forget(7)
	if !l.Allow(7, now) {
		t.Fatal("forgotten user should start with a full bucket")
	}
}

func TestIdleBucketsAreSwept(t *testing.T) {
	l := New(100, 100, time.Second)
	start := time.Unix(1_700_000_000, 0)
	l.Allow(42, start)
	l.Allow(1, start.Add(1500*time.Millisecond))
	if n := l.Tracked(); n != 2 {
		t.Fatalf("tracked=%d want=2", n)
	}

	// the sweep runs here: user 42 has been idle for 2s, user 1 for 0.5s
	l.Allow(1, start.Add(2*time.Second))
	if n := l.Tracked(); n != 1 {
		t.Fatalf("tracked=%d want=1 after sweep", n)
	}
	l.mu.Lock()
	_, ok := l.users[42]
	l.mu.Unlock()
	if ok {
		t.Fatal("idle bucket should have been swept")
	}
}

func TestNilLimiterTracksNothing(t *testing.T) {
	var l *MapLimiter
	l.Forget(1)
	if l.Tracked() != 0 {
		t.Fatal("nil limiter should track nothing")
	}
}
