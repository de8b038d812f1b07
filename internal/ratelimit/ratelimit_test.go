package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_BurstThenDeny(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(Config{RequestsPerMinute: 60, BurstSize: 3, CleanupInterval: time.Hour}).
		WithClock(func() time.Time { return now })
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if l.Allow("client") {
		t.Fatal("request beyond burst should be denied")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(Config{RequestsPerMinute: 60, BurstSize: 2, CleanupInterval: time.Hour}).
		WithClock(func() time.Time { return now })
	defer l.Stop()

	l.Allow("client")
	l.Allow("client")
	if l.Allow("client") {
		t.Fatal("bucket should be empty")
	}

	// 60 rpm = one token per second.
	now = now.Add(time.Second)
	if !l.Allow("client") {
		t.Fatal("one token should have refilled after a second")
	}
	if l.Allow("client") {
		t.Fatal("only one token should have refilled")
	}
}

func TestAllow_RefillCappedAtBurst(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(Config{RequestsPerMinute: 60, BurstSize: 2, CleanupInterval: time.Hour}).
		WithClock(func() time.Time { return now })
	defer l.Stop()

	l.Allow("client")

	now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d within burst cap should be allowed", i+1)
		}
	}
	if l.Allow("client") {
		t.Fatal("refill should be capped at burst size")
	}
}

func TestAllow_KeysIndependent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Hour}).
		WithClock(func() time.Time { return now })
	defer l.Stop()

	if !l.Allow("a") {
		t.Fatal("first request for a should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("a is exhausted")
	}
	if !l.Allow("b") {
		t.Fatal("b has its own bucket")
	}
}
