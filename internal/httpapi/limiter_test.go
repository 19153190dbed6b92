package httpapi

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAttemptLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	l := newAttemptLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two attempts should pass")
	}
	if l.Allow("a") {
		t.Fatal("third attempt inside the window should be rejected")
	}
	if !l.Allow("b") {
		t.Fatal("keys must be limited independently")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("a") {
		t.Fatal("attempt after the window should pass")
	}
}

func TestAttemptLimiterForgetsIdleKeys(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	l := newAttemptLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		l.Allow(fmt.Sprintf("192.0.2.%d", i))
	}
	now = now.Add(30 * time.Second)
	l.Allow("198.51.100.7")
	if len(l.entries) != 51 {
		t.Fatalf("keys inside the window must be kept, have %d", len(l.entries))
	}

	now = now.Add(45 * time.Second)
	l.Allow("203.0.113.9")
	if len(l.entries) != 2 {
		t.Fatalf("expected idle keys to be swept, have %d", len(l.entries))
	}
	if _, ok := l.entries["198.51.100.7"]; !ok {
		t.Fatal("key with a recent attempt must survive the sweep")
	}
}

func TestAttemptLimiterDisabled(t *testing.T) {
	l := newAttemptLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestClientKey(t *testing.T) {
	tests := map[string]string{
		"192.0.2.1:1234":       "192.0.2.1",
		"192.0.2.1":            "192.0.2.1",
		"[2001:db8::1]:443":    "2001:db8::1",
		"2001:db8::1":          "2001:db8::1",
		"":                     "unknown",
		"some-proxy-host:8080": "some-proxy-host",
	}
	for remote, want := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = remote
		if got := clientKey(req); got != want {
			t.Fatalf("clientKey(%q) = %q, want %q", remote, got, want)
		}
	}
}
